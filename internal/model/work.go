package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a status change would move a work backwards
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the position of a parent work in the verification state machine
type Status string

const (
	StatusQueued     Status = "queued"
	StatusExtracting Status = "extracting"
	StatusVerifying  Status = "verifying"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank orders the non-terminal states; terminal states share the top rank
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusExtracting:
		return 1
	case StatusVerifying:
		return 2
	case StatusFinalizing:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	default:
		return -1
	}
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Before reports whether s comes strictly earlier than other in the state machine
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

// CanTransition reports whether from → to is a forward move.
// Any non-terminal state may fail; terminal states are final.
func CanTransition(from, to Status) bool {
	if from.rank() < 0 || to.rank() < 0 || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if to == StatusCompleted {
		return from == StatusFinalizing
	}
	return from.rank() < to.rank()
}

// WorkKind tags the ParentWork variant
type WorkKind string

const (
	WorkKindPodcast WorkKind = "podcast"
	WorkKindLive    WorkKind = "live"
)

// ParentWork is the unit of ingestion that owns claims and verdicts.
// Exactly one of Podcast or Live is set, matching Kind.
type ParentWork struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Kind        WorkKind  `json:"kind"`
	Status      Status    `json:"status"`
	ProgressPct int       `json:"progress_pct"`
	Stats       Stats     `json:"stats"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Podcast *PodcastWork `json:"podcast,omitempty"`
	Live    *LiveWork    `json:"live,omitempty"`
}

// PodcastWork is the payload of an uploaded recording
type PodcastWork struct {
	Title       string `json:"title"`
	AudioRef    string `json:"audio_ref,omitempty"` // e.g. s3://bucket/key or a file path
	ContentType string `json:"content_type,omitempty"`
}

// LiveWork is the payload of a live session
type LiveWork struct {
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewPodcastWork creates a queued podcast work
func NewPodcastWork(id, ownerID string, p PodcastWork) *ParentWork {
	now := time.Now().UTC()
	return &ParentWork{
		ID:        id,
		OwnerID:   ownerID,
		Kind:      WorkKindPodcast,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Podcast:   &p,
	}
}

// NewLiveWork creates a queued live session work
func NewLiveWork(id, ownerID, title string) *ParentWork {
	now := time.Now().UTC()
	return &ParentWork{
		ID:        id,
		OwnerID:   ownerID,
		Kind:      WorkKindLive,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Live:      &LiveWork{Title: title, StartedAt: now},
	}
}

// Title returns the variant's display title
func (w *ParentWork) Title() string {
	switch {
	case w.Podcast != nil:
		return w.Podcast.Title
	case w.Live != nil:
		return w.Live.Title
	}
	return ""
}

// Validate checks that the variant payload matches the kind
func (w *ParentWork) Validate() error {
	if w.ID == "" {
		return errors.New("parent work id is required")
	}
	switch w.Kind {
	case WorkKindPodcast:
		if w.Podcast == nil || w.Live != nil {
			return fmt.Errorf("podcast work %s must carry only a podcast payload", w.ID)
		}
	case WorkKindLive:
		if w.Live == nil || w.Podcast != nil {
			return fmt.Errorf("live work %s must carry only a live payload", w.ID)
		}
	default:
		return fmt.Errorf("unknown work kind %q", w.Kind)
	}
	return nil
}

// Advance moves the work to status to, rejecting backward moves
func (w *ParentWork) Advance(to Status) error {
	if !CanTransition(w.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, to)
	}
	w.Status = to
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy that shares no mutable state with w
func (w *ParentWork) Clone() *ParentWork {
	out := *w
	out.Stats = w.Stats.Clone()
	if w.Podcast != nil {
		p := *w.Podcast
		out.Podcast = &p
	}
	if w.Live != nil {
		l := *w.Live
		if w.Live.EndedAt != nil {
			t := *w.Live.EndedAt
			l.EndedAt = &t
		}
		out.Live = &l
	}
	return &out
}
