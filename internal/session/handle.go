package session

import (
	"context"
	"sync"
)

// Handle owns the background work of one session. Callers may poll, await or cancel it.
type Handle struct {
	id     string
	done   chan struct{}
	cancel func()
	live   *LiveSession

	mu  sync.Mutex
	err error
}

func newHandle(id string, cancel func()) *Handle {
	return &Handle{
		id:     id,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID returns the parent work id
func (h *Handle) ID() string {
	return h.id
}

// Live returns the live session, or nil for a batch handle
func (h *Handle) Live() *LiveSession {
	return h.live
}

// Done is closed when the session reaches a terminal state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the session error once Done is closed
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the session finishes or ctx ends
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the session; it ends as failed (batch) or ended early (live)
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.err = err
	close(h.done)
}
