package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/worker"
	"go.uber.org/zap"
)

// subscriberBuffer is the verdict backlog kept per subscriber before drops
const subscriberBuffer = 32

// LiveSession verifies claims as transcript units arrive. Units are extracted
// in arrival order; verdicts complete in any order.
type LiveSession struct {
	deps      *Deps
	work      *model.ParentWork
	pool      *worker.Pool
	grace     time.Duration
	startedAt time.Time
	log       *zap.Logger

	// mu guards the state machine and arrival-side bookkeeping
	mu       sync.Mutex
	started  bool
	ended    bool
	seen     map[string]bool
	dropped  map[string]bool
	failure  error
	resolved int
	queued   int

	// statsMu guards stats, subscribers and the finalized flag. settled counts
	// checks folded in before finalization.
	statsMu   sync.Mutex
	stats     model.Stats
	settled   int
	finalized bool
	subs      map[int]chan model.Verdict
	nextSub   int

	done chan struct{}
}

// StartLive opens a live session for a queued live work. The work must already
// be persisted.
func StartLive(ctx context.Context, deps *Deps, work *model.ParentWork) (*LiveSession, error) {
	if err := deps.init(); err != nil {
		return nil, err
	}
	if work.Kind != model.WorkKindLive {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, work.ID, work.Kind)
	}
	if work.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkTerminal, work.ID, work.Status)
	}

	grace := deps.Config.LiveGracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}

	startedAt := time.Now().UTC()
	if work.Live != nil && !work.Live.StartedAt.IsZero() {
		startedAt = work.Live.StartedAt
	}

	pool := worker.NewPool(ctx, deps.Config.Workers, deps.Config.QueueSize)
	pool.Start()

	s := &LiveSession{
		deps:      deps,
		work:      work.Clone(),
		pool:      pool,
		grace:     grace,
		startedAt: startedAt,
		log:       deps.Logger.With(zap.String("work_id", work.ID), zap.String("kind", string(work.Kind))),
		seen:      make(map[string]bool),
		dropped:   make(map[string]bool),
		stats:     work.Stats.Clone(),
		subs:      make(map[int]chan model.Verdict),
		done:      make(chan struct{}),
	}
	deps.Metrics.ActiveSessions.WithLabelValues(string(model.WorkKindLive)).Inc()
	return s, nil
}

// ID returns the parent work id
func (s *LiveSession) ID() string {
	return s.work.ID
}

// Done is closed once the session is finalized
func (s *LiveSession) Done() <-chan struct{} {
	return s.done
}

// OnSegment extracts claims from one unit and queues a check for every new
// qualifying candidate. It returns the queued candidates. Extraction failures
// skip the unit; an extractor crash fails the session.
func (s *LiveSession) OnSegment(ctx context.Context, unit model.TranscriptUnit) ([]model.ClaimCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}
	if s.failure != nil {
		return nil, s.failure
	}

	if !s.started {
		if err := s.advance(ctx, model.StatusExtracting); err != nil {
			return nil, s.setFailure(err)
		}
	}

	claims, err := s.deps.extractUnit(s.log, unit)
	if err != nil {
		return nil, s.setFailure(err)
	}

	if !s.started {
		s.started = true
		if err := s.advance(ctx, model.StatusVerifying); err != nil {
			return nil, s.setFailure(err)
		}
	}

	var queued []model.ClaimCandidate
	for _, c := range claims {
		h := c.Hash()
		if s.seen[h] {
			continue
		}
		s.seen[h] = true

		job := &claimCheck{deps: s.deps, workID: s.work.ID, claim: c, onDone: s.record}
		if err := s.pool.Submit(job); err != nil {
			// a repeat of the claim may be queued once the backlog clears
			delete(s.seen, h)
			s.dropped[h] = true
			s.log.Warn("claim check dropped", zap.String("claim_id", c.ID), zap.Error(err))
			continue
		}
		delete(s.dropped, h)
		s.queued++
		queued = append(queued, c)
	}
	return queued, nil
}

// record folds one resolved check into the running stats
func (s *LiveSession) record(res *checkResult) {
	if res.Err != nil && res.abandoned() {
		return
	}

	s.mu.Lock()
	if res.Err != nil {
		s.setFailure(res.Err)
	} else {
		s.resolved++
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.finalized {
		return
	}
	s.settled++
	if res.Err != nil {
		return
	}
	s.stats.Add(res.Verdict)
	s.stats.DurationMs = time.Since(s.startedAt).Milliseconds()
	if err := s.deps.Store.SaveParentWorkStats(context.Background(), s.work.ID, s.stats); err != nil {
		s.log.Warn("stats update failed", zap.Error(err))
	}
	for _, ch := range s.subs {
		select {
		case ch <- res.Verdict:
		default:
		}
	}
}

// Subscribe returns a channel of verdicts as they resolve and a function that
// releases it. Slow subscribers miss verdicts rather than stall the session.
func (s *LiveSession) Subscribe() (<-chan model.Verdict, func()) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	ch := make(chan model.Verdict, subscriberBuffer)
	if s.finalized {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.statsMu.Lock()
			defer s.statsMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Snapshot returns the current status, progress and stats
func (s *LiveSession) Snapshot() StatusReport {
	s.mu.Lock()
	report := StatusReport{
		ID:          s.work.ID,
		Kind:        model.WorkKindLive,
		Status:      s.work.Status,
		ProgressPct: Progress(s.resolved, s.queued),
		Error:       s.work.Error,
	}
	if s.work.Status.IsTerminal() {
		report.ProgressPct = s.work.ProgressPct
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	report.Summary = s.stats.Clone()
	if !s.finalized {
		report.Summary.DurationMs = time.Since(s.startedAt).Milliseconds()
	}
	s.statsMu.Unlock()
	return report
}

// End stops accepting units, skips checks that have not started and waits up
// to the grace period for running ones before abandoning them. The finalized
// work is returned.
func (s *LiveSession) End(ctx context.Context) (*model.ParentWork, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	s.ended = true
	queued, dropped := s.queued, len(s.dropped)
	s.mu.Unlock()

	defer close(s.done)
	defer s.deps.Metrics.ActiveSessions.WithLabelValues(string(model.WorkKindLive)).Dec()

	wctx := context.WithoutCancel(ctx)

	s.mu.Lock()
	failure := s.failure
	if failure == nil {
		if err := s.advance(wctx, model.StatusFinalizing); err != nil {
			failure = err
		}
	}
	s.mu.Unlock()

	s.pool.Stop()
	if !s.pool.WaitTimeout(s.grace) {
		s.log.Warn("abandoning in-flight claim checks after grace period",
			zap.Int("in_flight", s.pool.InFlight()),
			zap.Duration("grace", s.grace))
		s.pool.Cancel()
	}

	// checks not folded in by now are abandoned, whether skipped in the queue,
	// cut off by the cancel or finishing after this point
	s.statsMu.Lock()
	s.finalized = true
	abandoned := queued - s.settled + dropped
	s.stats.Abandoned += abandoned
	endedAt := time.Now().UTC()
	s.stats.DurationMs = endedAt.Sub(s.startedAt).Milliseconds()
	stats := s.stats.Clone()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.statsMu.Unlock()

	if abandoned > 0 {
		s.deps.Metrics.AbandonedChecks.Add(float64(abandoned))
		s.log.Info("claim checks abandoned at session end",
			zap.Int("abandoned", abandoned),
			zap.Int("dropped", dropped),
			zap.Int("not_started", s.pool.Skipped()+s.pool.Pending()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.work.Stats = stats
	s.work.Live.EndedAt = &endedAt

	if failure != nil {
		err := failWork(wctx, s.deps, s.log, s.work, failure)
		if serr := s.deps.Store.SaveParentWorkStats(wctx, s.work.ID, stats); serr != nil {
			s.log.Warn("stats update failed", zap.Error(serr))
		}
		return s.work.Clone(), err
	}

	if err := s.work.Advance(model.StatusCompleted); err != nil {
		return s.work.Clone(), err
	}
	s.work.ProgressPct = 100
	if err := s.deps.Store.SaveParentWork(wctx, s.work); err != nil {
		return s.work.Clone(), failWork(wctx, s.deps, s.log, s.work, fmt.Errorf("save live work: %w", err))
	}

	s.log.Info("live session completed",
		zap.Int("claims", stats.TotalClaims),
		zap.Int("flagged", stats.FlaggedClaims),
		zap.Int("abandoned", stats.Abandoned),
		zap.Int64("duration_ms", stats.DurationMs))
	return s.work.Clone(), nil
}

// advance persists a forward transition; callers hold mu
func (s *LiveSession) advance(ctx context.Context, to model.Status) error {
	if !s.work.Status.Before(to) {
		return nil
	}
	if err := s.work.Advance(to); err != nil {
		return err
	}
	if err := s.deps.Store.SaveParentWorkStatus(ctx, s.work.ID, to, s.work.ProgressPct, ""); err != nil {
		return fmt.Errorf("save status %s: %w", to, err)
	}
	return nil
}

// setFailure records the first unrecoverable error and stops new checks; callers hold mu
func (s *LiveSession) setFailure(err error) error {
	if s.failure == nil {
		s.failure = err
		s.log.Error("live session failed", zap.Error(err))
	}
	return s.failure
}
