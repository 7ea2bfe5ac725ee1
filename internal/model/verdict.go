package model

import (
	"fmt"
	"time"
)

// Verdict is the synthesized fact-check outcome for one claim
type Verdict struct {
	ID               string        `json:"id"`
	ParentWorkID     string        `json:"parent_work_id"`
	ClaimID          string        `json:"claim_id"`
	ClaimText        string        `json:"claim_text"`
	ClaimContext     string        `json:"claim_context,omitempty"`
	ClaimHash        string        `json:"claim_hash"`
	OriginOffsetMs   int64         `json:"origin_offset_ms"`
	Label            Label         `json:"label"`
	Confidence       int           `json:"confidence"` // 0..100
	Explanation      string        `json:"explanation"`
	Perspectives     []Perspective `json:"perspectives"`
	Sources          []Source      `json:"sources,omitempty"`
	IsFlagged        bool          `json:"is_flagged"`
	ProcessingTimeMs int64         `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Label classifies the outcome of a verification
type Label string

const (
	LabelVerified  Label = "verified"
	LabelFalse     Label = "false"
	LabelPartial   Label = "partial"
	LabelDisputed  Label = "disputed"
	LabelUncertain Label = "uncertain"
)

// Labels returns every verdict label in display order
func Labels() []Label {
	return []Label{LabelVerified, LabelFalse, LabelPartial, LabelDisputed, LabelUncertain}
}

// Valid reports whether l is one of the defined labels
func (l Label) Valid() bool {
	switch l {
	case LabelVerified, LabelFalse, LabelPartial, LabelDisputed, LabelUncertain:
		return true
	}
	return false
}

// DefaultFlagCutoff is the confidence below which a verdict is flagged
const DefaultFlagCutoff = 70

// IsFlagged derives the dashboard flag from label and confidence
func IsFlagged(label Label, confidence int, cutoff int) bool {
	return label == LabelFalse || label == LabelDisputed || confidence < cutoff
}

// Normalize clamps confidence, repairs unknown labels and derives IsFlagged.
// It must run before a verdict is persisted.
func (v *Verdict) Normalize(flagCutoff int) {
	if !v.Label.Valid() {
		v.Label = LabelUncertain
	}
	v.Confidence = Clamp(v.Confidence, 0, 100)
	for i := range v.Perspectives {
		v.Perspectives[i].RelevanceScore = Clamp(v.Perspectives[i].RelevanceScore, 0, 100)
	}
	v.IsFlagged = IsFlagged(v.Label, v.Confidence, flagCutoff)
}

// UncertainVerdict builds the degraded verdict used when no usable evidence exists
func UncertainVerdict(claim ClaimCandidate, reason string) Verdict {
	return Verdict{
		ClaimID:        claim.ID,
		ClaimText:      claim.Text,
		ClaimContext:   claim.Context,
		ClaimHash:      claim.Hash(),
		OriginOffsetMs: claim.OriginOffsetMs,
		Label:          LabelUncertain,
		Confidence:     0,
		Explanation:    fmt.Sprintf("Unable to verify this claim: %s.", reason),
		Perspectives:   []Perspective{},
	}
}

// Stats aggregates verdicts of one parent work. Add keeps it O(1) per verdict.
type Stats struct {
	TotalClaims    int           `json:"total_claims"`
	FlaggedClaims  int           `json:"flagged_claims"`
	ConfidenceSum  int           `json:"confidence_sum"`
	MeanConfidence float64       `json:"mean_confidence"`
	Abandoned      int           `json:"abandoned,omitempty"` // Claim checks dropped at session end
	LabelCounts    map[Label]int `json:"label_counts,omitempty"`
	DurationMs     int64         `json:"duration_ms,omitempty"`
}

// Add folds one verdict into the aggregate
func (s *Stats) Add(v Verdict) {
	if s.LabelCounts == nil {
		s.LabelCounts = make(map[Label]int)
	}
	s.TotalClaims++
	if v.IsFlagged {
		s.FlaggedClaims++
	}
	s.ConfidenceSum += v.Confidence
	s.MeanConfidence = float64(s.ConfidenceSum) / float64(s.TotalClaims)
	s.LabelCounts[v.Label]++
}

// Clone returns a deep copy safe to hand to other goroutines
func (s Stats) Clone() Stats {
	out := s
	if s.LabelCounts != nil {
		out.LabelCounts = make(map[Label]int, len(s.LabelCounts))
		for k, v := range s.LabelCounts {
			out.LabelCounts[k] = v
		}
	}
	return out
}
