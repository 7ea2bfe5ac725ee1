package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrSessionActive is returned when a work already has a running session
	ErrSessionActive = errors.New("session already active")

	// ErrManagerClosed is returned after Shutdown
	ErrManagerClosed = errors.New("session manager is shut down")

	// ErrNoTranscriber is returned for podcast works when no transcriber is configured
	ErrNoTranscriber = errors.New("no transcriber configured")
)

// StatusReport is the externally visible state of a parent work
type StatusReport struct {
	ID          string         `json:"id"`
	Kind        model.WorkKind `json:"kind"`
	Status      model.Status   `json:"status"`
	ProgressPct int            `json:"progress_pct"`
	Summary     model.Stats    `json:"summary"`
	Error       string         `json:"error,omitempty"`
}

// Manager starts sessions and tracks the ones still running. Sessions share
// no mutable state; each gets its own worker pool.
type Manager struct {
	deps        *Deps
	transcriber Transcriber

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithTranscriber enables podcast works that reference audio
func WithTranscriber(t Transcriber) ManagerOption {
	return func(m *Manager) { m.transcriber = t }
}

// NewManager creates a session manager
func NewManager(deps Deps, opts ...ManagerOption) (*Manager, error) {
	if err := deps.init(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		deps:    &deps,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartVerification registers work and starts its session in the background.
// Podcast works are transcribed from their audio reference first.
func (m *Manager) StartVerification(ctx context.Context, work *model.ParentWork) (*Handle, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	switch work.Kind {
	case model.WorkKindPodcast:
		if m.transcriber == nil {
			return nil, ErrNoTranscriber
		}
		if work.Podcast == nil || work.Podcast.AudioRef == "" {
			return nil, fmt.Errorf("podcast work %s has no audio reference", work.ID)
		}
		ref := work.Podcast.AudioRef
		return m.startBatch(ctx, work, func(ctx context.Context) ([]model.TranscriptUnit, error) {
			units, err := m.transcriber.Transcribe(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("transcribe %s: %w", ref, err)
			}
			return units, nil
		})
	case model.WorkKindLive:
		return m.startLive(ctx, work)
	default:
		return nil, fmt.Errorf("%w: %q", ErrWrongKind, work.Kind)
	}
}

// StartBatch registers a podcast work and verifies an already transcribed recording
func (m *Manager) StartBatch(ctx context.Context, work *model.ParentWork, units []model.TranscriptUnit) (*Handle, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if work.Kind != model.WorkKindPodcast {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, work.ID, work.Kind)
	}
	return m.startBatch(ctx, work, func(context.Context) ([]model.TranscriptUnit, error) {
		return units, nil
	})
}

func (m *Manager) startBatch(ctx context.Context, work *model.ParentWork, transcript func(context.Context) ([]model.TranscriptUnit, error)) (*Handle, error) {
	stored, err := m.register(ctx, work)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithCancel(m.ctx)
	h := newHandle(stored.ID, cancel)
	if err := m.track(h); err != nil {
		cancel()
		return nil, err
	}

	log := m.deps.Logger.With(zap.String("work_id", stored.ID), zap.String("kind", string(stored.Kind)))
	active := m.deps.Metrics.ActiveSessions.WithLabelValues(string(model.WorkKindPodcast))
	active.Inc()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer active.Dec()
		defer cancel()
		defer m.untrack(h)

		units, err := transcript(hctx)
		if err != nil {
			h.finish(failWork(hctx, m.deps, log, stored, err))
			return
		}
		h.finish(RunBatch(hctx, m.deps, stored, units))
	}()

	return h, nil
}

func (m *Manager) startLive(ctx context.Context, work *model.ParentWork) (*Handle, error) {
	stored, err := m.register(ctx, work)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(m.ctx)
	live, err := StartLive(lctx, m.deps, stored)
	if err != nil {
		cancel()
		return nil, err
	}

	id := stored.ID
	h := newHandle(id, func() {
		cancel()
		go func() { _, _ = m.EndLiveSession(context.Background(), id) }()
	})
	h.live = live
	if err := m.track(h); err != nil {
		cancel()
		_, _ = live.End(ctx)
		return nil, err
	}
	return h, nil
}

// register persists a new work, or loads the stored copy when it already exists
func (m *Manager) register(ctx context.Context, work *model.ParentWork) (*model.ParentWork, error) {
	if err := work.Validate(); err != nil {
		return nil, err
	}

	err := m.deps.Store.CreateParentWork(ctx, work)
	if err == nil {
		return work.Clone(), nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return nil, fmt.Errorf("register work %s: %w", work.ID, err)
	}

	stored, err := m.deps.Store.LoadParentWork(ctx, work.ID)
	if err != nil {
		return nil, err
	}
	if stored.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkTerminal, stored.ID, stored.Status)
	}
	return stored, nil
}

func (m *Manager) track(h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if _, ok := m.handles[h.id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionActive, h.id)
	}
	m.handles[h.id] = h
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) untrack(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.id] == h {
		delete(m.handles, h.id)
	}
}

// Handle returns the running session for id
func (m *Manager) Handle(id string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	return h, ok
}

func (m *Manager) liveSession(id string) (*Handle, error) {
	h, ok := m.Handle(id)
	if !ok || h.live == nil {
		return nil, fmt.Errorf("%w: live session %s", ErrSessionNotFound, id)
	}
	return h, nil
}

// PushSegment feeds one transcript unit to a live session
func (m *Manager) PushSegment(ctx context.Context, id string, unit model.TranscriptUnit) ([]model.ClaimCandidate, error) {
	h, err := m.liveSession(id)
	if err != nil {
		return nil, err
	}
	return h.live.OnSegment(ctx, unit)
}

// EndLiveSession finalizes a live session and returns the completed work
func (m *Manager) EndLiveSession(ctx context.Context, id string) (*model.ParentWork, error) {
	h, err := m.liveSession(id)
	if err != nil {
		return nil, err
	}

	work, err := h.live.End(ctx)
	if errors.Is(err, ErrSessionEnded) {
		return nil, err
	}
	m.untrack(h)
	h.finish(err)
	return work, err
}

// GetStatus reports status, progress and summary stats of a work
func (m *Manager) GetStatus(ctx context.Context, id string) (StatusReport, error) {
	if h, ok := m.Handle(id); ok && h.live != nil {
		return h.live.Snapshot(), nil
	}

	w, err := m.deps.Store.LoadParentWork(ctx, id)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		ID:          w.ID,
		Kind:        w.Kind,
		Status:      w.Status,
		ProgressPct: w.ProgressPct,
		Summary:     w.Stats,
		Error:       w.Error,
	}, nil
}

// Work loads a parent work
func (m *Manager) Work(ctx context.Context, id string) (*model.ParentWork, error) {
	return m.deps.Store.LoadParentWork(ctx, id)
}

// Verdicts lists the persisted verdicts of a work in transcript order
func (m *Manager) Verdicts(ctx context.Context, id string) ([]model.Verdict, error) {
	if _, err := m.deps.Store.LoadParentWork(ctx, id); err != nil {
		return nil, err
	}
	return m.deps.Store.ListVerdicts(ctx, id)
}

// Shutdown ends live sessions and waits for batch sessions until ctx ends,
// then cancels whatever is still running
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var live []*Handle
	for _, h := range m.handles {
		if h.live != nil {
			live = append(live, h)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range live {
		if _, err := m.EndLiveSession(ctx, h.id); err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionEnded) {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.deps.Logger.Warn("cancelling running batch sessions at shutdown")
		m.cancel()
		<-done
	}
	m.cancel()
	return errors.Join(errs...)
}
