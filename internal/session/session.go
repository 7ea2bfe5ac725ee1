// Package session drives parent works through the verification state machine
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/truthcast/internal/extract"
	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/ppiankov/truthcast/internal/worker"
	"go.uber.org/zap"
)

var (
	// ErrWorkTerminal is returned when a completed or failed work is started again
	ErrWorkTerminal = errors.New("parent work is already terminal")

	// ErrSessionEnded is returned by live operations after End
	ErrSessionEnded = errors.New("live session has ended")

	// ErrSessionNotFound is returned for ids without an active session
	ErrSessionNotFound = errors.New("session not found")

	// ErrWrongKind is returned when a work is routed to the wrong session type
	ErrWrongKind = errors.New("wrong parent work kind")
)

// Searcher finds sources for a claim
type Searcher interface {
	Search(ctx context.Context, query string, types []model.SourceType, limit int) ([]model.Source, error)
}

// VerdictSynthesizer turns a claim and its sources into a verdict
type VerdictSynthesizer interface {
	Synthesize(ctx context.Context, claim model.ClaimCandidate, sources []model.Source) model.Verdict
}

// Transcriber converts a recording into transcript units
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) ([]model.TranscriptUnit, error)
}

// Deps are the collaborators shared by every session. They are built once and injected.
type Deps struct {
	Store       store.Store
	Extractor   extract.Extractor
	Searcher    Searcher
	Synthesizer VerdictSynthesizer
	Config      model.PipelineConfig
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

func (d *Deps) init() error {
	switch {
	case d.Store == nil:
		return errors.New("session: store is required")
	case d.Extractor == nil:
		return errors.New("session: extractor is required")
	case d.Searcher == nil:
		return errors.New("session: searcher is required")
	case d.Synthesizer == nil:
		return errors.New("session: synthesizer is required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Config.Workers <= 0 {
		d.Config.Workers = 4
	}
	if d.Config.QueueSize <= 0 {
		d.Config.QueueSize = 256
	}
	if d.Config.ImportanceThreshold <= 0 {
		d.Config.ImportanceThreshold = model.DefaultImportanceThreshold
	}
	if d.Config.SourcesPerClaim <= 0 {
		d.Config.SourcesPerClaim = 10
	}
	return nil
}

// extractUnit runs the extractor on one unit. Only ErrPanic is returned; other
// failures skip the unit.
func (d *Deps) extractUnit(log *zap.Logger, unit model.TranscriptUnit) ([]model.ClaimCandidate, error) {
	claims, err := extract.ExtractUnit(d.Extractor, unit)
	if errors.Is(err, extract.ErrPanic) {
		return nil, err
	}
	if err != nil {
		d.Metrics.ExtractionFailures.Inc()
		log.Warn("skipping transcript unit",
			zap.Int64("offset_ms", unit.StartOffsetMs),
			zap.Error(err))
		return nil, nil
	}
	return extract.Qualifying(claims, d.Config.ImportanceThreshold), nil
}

// checkClaim searches, synthesizes and persists the verdict for one claim
func (d *Deps) checkClaim(ctx context.Context, workID string, claim model.ClaimCandidate) (model.Verdict, error) {
	start := time.Now()
	log := d.Logger.With(zap.String("work_id", workID), zap.String("claim_id", claim.ID))

	sources, err := d.Searcher.Search(ctx, claim.Text, d.Config.ParsedSourceTypes(), d.Config.SourcesPerClaim)
	if err != nil {
		if ctx.Err() != nil {
			return model.Verdict{}, ctx.Err()
		}
		// Every provider failed: the synthesizer degrades to uncertain
		log.Warn("source search failed", zap.Error(err))
		sources = nil
	}

	v := d.Synthesizer.Synthesize(ctx, claim, sources)
	if ctx.Err() != nil {
		return v, ctx.Err()
	}
	v.ParentWorkID = workID

	if err := d.Store.SaveVerdict(ctx, v); err != nil {
		return v, fmt.Errorf("save verdict for claim %s: %w", claim.ID, err)
	}

	d.Metrics.ObserveVerdict(v)
	d.Metrics.ClaimCheckDuration.Observe(time.Since(start).Seconds())
	log.Debug("claim verified",
		zap.String("label", string(v.Label)),
		zap.Int("confidence", v.Confidence),
		zap.Int("sources", len(sources)))
	return v, nil
}

// claimCheck is the worker job for one claim
type claimCheck struct {
	deps   *Deps
	workID string
	claim  model.ClaimCandidate
	onDone func(*checkResult)
}

// Execute runs the check and reports the result to onDone
func (c *claimCheck) Execute(ctx context.Context) worker.Result {
	v, err := c.deps.checkClaim(ctx, c.workID, c.claim)
	res := &checkResult{Claim: c.claim, Verdict: v, Err: err}
	if c.onDone != nil {
		c.onDone(res)
	}
	return res
}

// checkResult is the outcome of one claimCheck
type checkResult struct {
	Claim   model.ClaimCandidate
	Verdict model.Verdict
	Err     error
}

// GetError returns the check error
func (r *checkResult) GetError() error {
	return r.Err
}

// abandoned reports whether the check stopped because its context ended
func (r *checkResult) abandoned() bool {
	return errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)
}

// Progress is completed/total as a percentage, 0 until total is known
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return model.Clamp(completed*100/total, 0, 100)
}
