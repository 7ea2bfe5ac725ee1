package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/worker"
	"go.uber.org/zap"
)

// batchRun drives one podcast work over a complete transcript
type batchRun struct {
	deps *Deps
	work *model.ParentWork
	log  *zap.Logger

	mu        sync.Mutex
	total     int
	completed int
}

// RunBatch verifies a complete transcript and leaves work in a terminal state.
// Claims whose verdicts are already persisted are not checked again, so a
// re-run never duplicates verdicts.
func RunBatch(ctx context.Context, deps *Deps, work *model.ParentWork, units []model.TranscriptUnit) error {
	if err := deps.init(); err != nil {
		return err
	}
	if work.Kind != model.WorkKindPodcast {
		return fmt.Errorf("%w: %s is %s", ErrWrongKind, work.ID, work.Kind)
	}
	if work.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrWorkTerminal, work.ID, work.Status)
	}

	r := &batchRun{
		deps: deps,
		work: work,
		log:  deps.Logger.With(zap.String("work_id", work.ID), zap.String("kind", string(work.Kind))),
	}
	return r.run(ctx, units)
}

func (r *batchRun) run(ctx context.Context, units []model.TranscriptUnit) error {
	start := time.Now()

	if err := r.advance(ctx, model.StatusExtracting, 0); err != nil {
		return r.fail(ctx, err)
	}

	claims, err := r.extract(units)
	if err != nil {
		return r.fail(ctx, err)
	}

	existing, err := r.deps.Store.ListVerdicts(ctx, r.work.ID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("list verdicts: %w", err))
	}
	done := make(map[string]bool, len(existing))
	for _, v := range existing {
		done[v.ClaimHash] = true
	}

	var pending []model.ClaimCandidate
	for _, c := range claims {
		if !done[c.Hash()] {
			pending = append(pending, c)
		}
	}
	r.total = len(claims)
	r.completed = len(claims) - len(pending)

	r.log.Info("extraction finished",
		zap.Int("units", len(units)),
		zap.Int("qualifying", len(claims)),
		zap.Int("already_verified", r.completed))

	if len(pending) > 0 {
		if err := r.advance(ctx, model.StatusVerifying, Progress(r.completed, r.total)); err != nil {
			return r.fail(ctx, err)
		}
		if err := r.verify(ctx, pending); err != nil {
			return r.fail(ctx, err)
		}
	}

	return r.finalize(ctx, start)
}

// extract runs the extractor over units in order and dedupes across units
func (r *batchRun) extract(units []model.TranscriptUnit) ([]model.ClaimCandidate, error) {
	var out []model.ClaimCandidate
	seen := make(map[string]bool)
	for _, unit := range units {
		claims, err := r.deps.extractUnit(r.log, unit)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			h := c.Hash()
			if seen[h] {
				continue
			}
			seen[h] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// verify checks pending claims on a worker pool sized for the batch
func (r *batchRun) verify(ctx context.Context, pending []model.ClaimCandidate) error {
	pool := worker.NewPool(ctx, r.deps.Config.Workers, len(pending))
	pool.Start()

	for _, c := range pending {
		job := &claimCheck{deps: r.deps, workID: r.work.ID, claim: c, onDone: r.onCheck(ctx)}
		if err := pool.Submit(job); err != nil {
			pool.Shutdown()
			return fmt.Errorf("submit claim %s: %w", c.ID, err)
		}
	}

	var errs []error
	for _, res := range pool.Wait() {
		cr := res.(*checkResult)
		if cr.Err != nil {
			errs = append(errs, cr.Err)
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("verification cancelled: %w", ctx.Err())
	}
	return errors.Join(errs...)
}

// onCheck records progress after each resolved claim
func (r *batchRun) onCheck(ctx context.Context) func(*checkResult) {
	return func(res *checkResult) {
		if res.Err != nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()

		r.completed++
		pct := Progress(r.completed, r.total)
		r.work.ProgressPct = pct
		if err := r.deps.Store.SaveParentWorkStatus(ctx, r.work.ID, model.StatusVerifying, pct, ""); err != nil {
			r.log.Warn("progress update failed", zap.Error(err))
		}
	}
}

// finalize aggregates persisted verdicts and completes the work
func (r *batchRun) finalize(ctx context.Context, start time.Time) error {
	if err := r.advance(ctx, model.StatusFinalizing, 100); err != nil {
		return r.fail(ctx, err)
	}

	verdicts, err := r.deps.Store.ListVerdicts(ctx, r.work.ID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("list verdicts: %w", err))
	}

	var stats model.Stats
	for _, v := range verdicts {
		stats.Add(v)
	}
	stats.DurationMs = time.Since(start).Milliseconds()
	if err := r.deps.Store.SaveParentWorkStats(ctx, r.work.ID, stats); err != nil {
		return r.fail(ctx, fmt.Errorf("save stats: %w", err))
	}
	r.work.Stats = stats

	if err := r.advance(ctx, model.StatusCompleted, 100); err != nil {
		return r.fail(ctx, err)
	}

	r.log.Info("verification completed",
		zap.Int("claims", stats.TotalClaims),
		zap.Int("flagged", stats.FlaggedClaims),
		zap.Float64("mean_confidence", stats.MeanConfidence),
		zap.Int64("duration_ms", stats.DurationMs))
	return nil
}

// advance moves the work forward and persists the new status. Moving to the
// current or an earlier state is a no-op so a resumed work skips ahead.
func (r *batchRun) advance(ctx context.Context, to model.Status, pct int) error {
	if !r.work.Status.Before(to) {
		return nil
	}
	if err := r.work.Advance(to); err != nil {
		return err
	}
	r.work.ProgressPct = pct
	if err := r.deps.Store.SaveParentWorkStatus(ctx, r.work.ID, to, pct, ""); err != nil {
		return fmt.Errorf("save status %s: %w", to, err)
	}
	return nil
}

// fail marks the work failed with a diagnostic and returns cause
func (r *batchRun) fail(ctx context.Context, cause error) error {
	return failWork(ctx, r.deps, r.log, r.work, cause)
}

// failWork moves work to failed. The status write ignores ctx cancellation.
func failWork(ctx context.Context, deps *Deps, log *zap.Logger, work *model.ParentWork, cause error) error {
	log.Error("verification failed", zap.Error(cause))
	if err := work.Advance(model.StatusFailed); err != nil {
		return errors.Join(cause, err)
	}
	work.Error = cause.Error()
	if err := deps.Store.SaveParentWorkStatus(context.WithoutCancel(ctx), work.ID, model.StatusFailed, work.ProgressPct, work.Error); err != nil {
		log.Error("failed to persist failure status", zap.Error(err))
		return errors.Join(cause, err)
	}
	return cause
}
