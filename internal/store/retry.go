package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/ppiankov/truthcast/internal/model"
	"go.uber.org/zap"
)

// retrySleepFunc waits between attempts (injectable for tests)
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryStore retries failed operations of the wrapped Store with exponential backoff
type RetryStore struct {
	next       Store
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// RetryOption configures a RetryStore
type RetryOption func(*RetryStore)

// RetryLogger logs each retried failure
func RetryLogger(l *zap.Logger) RetryOption {
	return func(r *RetryStore) {
		if l != nil {
			r.logger = l
		}
	}
}

// RetryMetrics counts retries
func RetryMetrics(m *metrics.Metrics) RetryOption {
	return func(r *RetryStore) { r.metrics = m }
}

// WithRetry wraps s so each call is attempted up to maxRetries+1 times.
// Exhaustion is reported as ErrPersistence.
func WithRetry(s Store, maxRetries int, baseDelay time.Duration, opts ...RetryOption) *RetryStore {
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	r := &RetryStore{
		next:       s,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == r.maxRetries {
			break
		}

		r.logger.Warn("store operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if r.metrics != nil {
			r.metrics.PersistenceRetries.Inc()
		}

		backoff := time.Duration(1<<uint(attempt)) * r.baseDelay
		if serr := retrySleepFunc(ctx, backoff); serr != nil {
			return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrPersistence, op, r.maxRetries+1, err)
}

// retryable reports whether err may succeed on a later attempt
func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrAlreadyExists) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryStore) CreateParentWork(ctx context.Context, w *model.ParentWork) error {
	return r.do(ctx, "create_parent_work", func() error { return r.next.CreateParentWork(ctx, w) })
}

func (r *RetryStore) LoadParentWork(ctx context.Context, id string) (*model.ParentWork, error) {
	var out *model.ParentWork
	err := r.do(ctx, "load_parent_work", func() error {
		var err error
		out, err = r.next.LoadParentWork(ctx, id)
		return err
	})
	return out, err
}

func (r *RetryStore) SaveParentWork(ctx context.Context, w *model.ParentWork) error {
	return r.do(ctx, "save_parent_work", func() error { return r.next.SaveParentWork(ctx, w) })
}

func (r *RetryStore) SaveParentWorkStatus(ctx context.Context, id string, status model.Status, progressPct int, errMsg string) error {
	return r.do(ctx, "save_parent_work_status", func() error {
		return r.next.SaveParentWorkStatus(ctx, id, status, progressPct, errMsg)
	})
}

func (r *RetryStore) SaveParentWorkStats(ctx context.Context, id string, stats model.Stats) error {
	return r.do(ctx, "save_parent_work_stats", func() error { return r.next.SaveParentWorkStats(ctx, id, stats) })
}

func (r *RetryStore) SaveVerdict(ctx context.Context, v model.Verdict) error {
	return r.do(ctx, "save_verdict", func() error { return r.next.SaveVerdict(ctx, v) })
}

func (r *RetryStore) ListVerdicts(ctx context.Context, parentWorkID string) ([]model.Verdict, error) {
	var out []model.Verdict
	err := r.do(ctx, "list_verdicts", func() error {
		var err error
		out, err = r.next.ListVerdicts(ctx, parentWorkID)
		return err
	})
	return out, err
}

func (r *RetryStore) Close() error {
	return r.next.Close()
}
