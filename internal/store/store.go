package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/truthcast/internal/model"
)

var (
	// ErrNotFound is returned when a parent work does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a parent work with a taken ID
	ErrAlreadyExists = errors.New("already exists")

	// ErrPersistence is returned when a write still fails after bounded retries
	ErrPersistence = errors.New("persistence failure")
)

// Store persists parent works and their verdicts. Every method is a single-row
// atomic write or read; there are no multi-row transactions.
type Store interface {
	CreateParentWork(ctx context.Context, w *model.ParentWork) error
	LoadParentWork(ctx context.Context, id string) (*model.ParentWork, error)
	SaveParentWork(ctx context.Context, w *model.ParentWork) error
	SaveParentWorkStatus(ctx context.Context, id string, status model.Status, progressPct int, errMsg string) error
	SaveParentWorkStats(ctx context.Context, id string, stats model.Stats) error

	// SaveVerdict upserts on (ParentWorkID, ClaimHash); a repeat keeps the original ID
	SaveVerdict(ctx context.Context, v model.Verdict) error
	ListVerdicts(ctx context.Context, parentWorkID string) ([]model.Verdict, error)

	Close() error
}

// Open creates the store selected by cfg, wrapped with bounded retries that
// take opts
func Open(ctx context.Context, cfg model.StoreConfig, opts ...RetryOption) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case "", "memory":
		s = NewMemory()
	case "sqlite":
		s, err = NewSQLite(ctx, cfg.DSN)
	case "postgres":
		s, err = NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q (supported: memory, sqlite, postgres)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		s = WithRetry(s, cfg.MaxRetries, cfg.RetryBaseDelay, opts...)
	}
	return s, nil
}

// workPayload is the serialized kind-specific part of a parent work
type workPayload struct {
	Podcast *model.PodcastWork `json:"podcast,omitempty"`
	Live    *model.LiveWork    `json:"live,omitempty"`
}

func encodePayload(w *model.ParentWork) (string, error) {
	data, err := json.Marshal(workPayload{Podcast: w.Podcast, Live: w.Live})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

func decodePayload(data string, w *model.ParentWork) error {
	var p workPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	w.Podcast, w.Live = p.Podcast, p.Live
	return nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
