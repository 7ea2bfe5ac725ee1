package verdict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/truthcast/internal/llm"
	"github.com/ppiankov/truthcast/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxDrivers is the number of perspectives cited in an explanation
const maxDrivers = 3

// Synthesizer turns a claim and its sources into a Verdict
type Synthesizer struct {
	judge        llm.Judge
	minRelevance int
	concurrency  int
	flagCutoff   int
	logger       *zap.Logger
	now          func() time.Time
}

// NewSynthesizer creates a synthesizer. A nil judge yields uncertain verdicts.
func NewSynthesizer(judge llm.Judge, cfg model.PipelineConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JudgeConcurrency <= 0 {
		cfg.JudgeConcurrency = 4
	}
	if cfg.FlagConfidenceCutoff <= 0 {
		cfg.FlagConfidenceCutoff = model.DefaultFlagCutoff
	}
	return &Synthesizer{
		judge:        judge,
		minRelevance: cfg.MinRelevance,
		concurrency:  cfg.JudgeConcurrency,
		flagCutoff:   cfg.FlagConfidenceCutoff,
		logger:       logger,
		now:          time.Now,
	}
}

// Synthesize judges every source and aggregates a verdict. It never fails:
// an unreachable judge or missing evidence produces an uncertain verdict.
func (s *Synthesizer) Synthesize(ctx context.Context, claim model.ClaimCandidate, sources []model.Source) model.Verdict {
	start := s.now()
	log := s.logger.With(zap.String("claim_id", claim.ID))

	var v model.Verdict
	switch {
	case len(sources) == 0:
		v = model.UncertainVerdict(claim, "no sources were found")
	case s.judge == nil:
		v = model.UncertainVerdict(claim, llm.ErrSynthesisUnavailable.Error())
		v.Sources = sources
	default:
		v = s.synthesize(ctx, log, claim, sources)
	}

	v.ID = uuid.NewString()
	v.CreatedAt = s.now().UTC()
	v.ProcessingTimeMs = s.now().Sub(start).Milliseconds()
	v.Normalize(s.flagCutoff)

	log.Debug("verdict synthesized",
		zap.String("label", string(v.Label)),
		zap.Int("confidence", v.Confidence),
		zap.Int("sources", len(sources)))
	return v
}

func (s *Synthesizer) synthesize(ctx context.Context, log *zap.Logger, claim model.ClaimCandidate, sources []model.Source) model.Verdict {
	judgments := make([]*llm.Judgment, len(sources))
	errs := make([]error, len(sources))

	var eg errgroup.Group
	eg.SetLimit(s.concurrency)
	for i, src := range sources {
		i, src := i, src
		eg.Go(func() error {
			judgments[i], errs[i] = s.judge.Judge(ctx, llm.JudgeRequest{
				Claim:        claim.Text,
				Context:      claim.Context,
				SourceTitle:  src.Title,
				SourceURL:    src.URL,
				SourceDomain: src.Domain,
				Excerpt:      src.Excerpt,
			})
			return nil
		})
	}
	_ = eg.Wait()

	items := make([]Evidence, 0, len(sources))
	perspectives := make([]model.Perspective, 0, len(sources))
	failed := 0
	for i, src := range sources {
		p := model.Perspective{
			SourceID: src.ID,
			Stance:   model.StanceNeutral,
			Excerpt:  src.Excerpt,
		}
		if errs[i] != nil {
			failed++
			log.Warn("source judgment failed", zap.String("source", src.URL), zap.Error(errs[i]))
			p.Explanation = "Source could not be assessed."
		} else {
			p.Stance = judgments[i].Stance
			p.RelevanceScore = model.Clamp(judgments[i].RelevanceScore, 0, 100)
			p.Explanation = judgments[i].Explanation
		}
		perspectives = append(perspectives, p)
		items = append(items, Evidence{Perspective: p, Source: src})
	}

	if failed == len(sources) {
		v := model.UncertainVerdict(claim, llm.ErrSynthesisUnavailable.Error())
		v.Perspectives = perspectives
		v.Sources = sources
		return v
	}

	b := Aggregate(items, s.minRelevance)
	if b.Label == model.LabelUncertain {
		v := model.UncertainVerdict(claim, "no source addressed it directly")
		v.Perspectives = perspectives
		v.Sources = sources
		return v
	}

	return model.Verdict{
		ClaimID:        claim.ID,
		ClaimText:      claim.Text,
		ClaimContext:   claim.Context,
		ClaimHash:      claim.Hash(),
		OriginOffsetMs: claim.OriginOffsetMs,
		Label:          b.Label,
		Confidence:     b.Confidence,
		Explanation:    explain(b),
		Perspectives:   perspectives,
		Sources:        sources,
	}
}

// explain states the outcome and cites the perspectives that drove it
func explain(b Breakdown) string {
	var support, dispute, mixed int
	for _, d := range b.Drivers {
		switch d.Perspective.Stance {
		case model.StanceSupports:
			support++
		case model.StanceDisputes:
			dispute++
		case model.StanceMixed:
			mixed++
		}
	}

	var sb strings.Builder
	switch b.Label {
	case model.LabelVerified:
		fmt.Fprintf(&sb, "Supported by %d of %d relevant sources.", support, b.Usable)
	case model.LabelFalse:
		fmt.Fprintf(&sb, "Contradicted by %d of %d relevant sources.", dispute, b.Usable)
	case model.LabelDisputed:
		fmt.Fprintf(&sb, "Sources disagree: %d support and %d dispute this claim.", support, dispute)
	default:
		fmt.Fprintf(&sb, "Partially supported: %d support, %d dispute, %d give a mixed picture.", support, dispute, mixed)
	}

	for i, d := range b.Drivers {
		if i == maxDrivers {
			break
		}
		name := d.Source.Domain
		if name == "" {
			name = d.Source.Title
		}
		fmt.Fprintf(&sb, " %s (%s, credibility %d)", name, d.Perspective.Stance, d.Source.CredibilityScore)
		if d.Perspective.Explanation != "" {
			fmt.Fprintf(&sb, ": %s", strings.TrimSuffix(d.Perspective.Explanation, "."))
		}
		sb.WriteString(".")
	}
	return sb.String()
}
