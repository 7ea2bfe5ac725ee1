package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClaimText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Global temperatures have risen by 1.1°C.", "global temperatures have risen by 1.1°c"},
		{"  Unemployment   fell to 5%!  ", "unemployment fell to 5%"},
		{"Pre-industrial times", "pre industrial times"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeClaimText(tt.in), tt.in)
	}
}

func TestClaimHash_EquivalentPhrasings(t *testing.T) {
	a := ClaimHash("Unemployment fell to 5% in 2023.")
	b := ClaimHash("unemployment fell to 5% in 2023")
	c := ClaimHash("Unemployment fell to 6% in 2023.")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, "clm_"+a[:16], ClaimID("Unemployment fell to 5% in 2023."))
}

func TestIsFlagged(t *testing.T) {
	assert.True(t, IsFlagged(LabelFalse, 95, DefaultFlagCutoff))
	assert.True(t, IsFlagged(LabelDisputed, 90, DefaultFlagCutoff))
	assert.True(t, IsFlagged(LabelVerified, 69, DefaultFlagCutoff))
	assert.False(t, IsFlagged(LabelVerified, 70, DefaultFlagCutoff))
	assert.False(t, IsFlagged(LabelPartial, 85, DefaultFlagCutoff))
}

func TestVerdictNormalize(t *testing.T) {
	v := Verdict{
		Label:      Label("bogus"),
		Confidence: 140,
		Perspectives: []Perspective{
			{SourceID: "a", Stance: StanceSupports, RelevanceScore: -5},
		},
	}
	v.Normalize(DefaultFlagCutoff)

	assert.Equal(t, LabelUncertain, v.Label)
	assert.Equal(t, 100, v.Confidence)
	assert.Equal(t, 0, v.Perspectives[0].RelevanceScore)
	assert.False(t, v.IsFlagged)
}

func TestUncertainVerdict(t *testing.T) {
	claim := ClaimCandidate{ID: "clm_1", Text: "Inflation hit 9% in 2022.", OriginOffsetMs: 4200}
	v := UncertainVerdict(claim, "no sources found")

	assert.Equal(t, LabelUncertain, v.Label)
	assert.Equal(t, 0, v.Confidence)
	assert.Equal(t, int64(4200), v.OriginOffsetMs)
	assert.Equal(t, claim.Hash(), v.ClaimHash)
	assert.Contains(t, v.Explanation, "no sources found")
	assert.NotNil(t, v.Perspectives)
}

func TestStatsAdd(t *testing.T) {
	var s Stats
	s.Add(Verdict{Label: LabelVerified, Confidence: 90})
	s.Add(Verdict{Label: LabelDisputed, Confidence: 50, IsFlagged: true})

	assert.Equal(t, 2, s.TotalClaims)
	assert.Equal(t, 1, s.FlaggedClaims)
	assert.InDelta(t, 70.0, s.MeanConfidence, 0.001)
	assert.Equal(t, 1, s.LabelCounts[LabelVerified])
	assert.Equal(t, 1, s.LabelCounts[LabelDisputed])

	clone := s.Clone()
	clone.LabelCounts[LabelVerified] = 10
	assert.Equal(t, 1, s.LabelCounts[LabelVerified])
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusExtracting, true},
		{StatusExtracting, StatusVerifying, true},
		{StatusExtracting, StatusFinalizing, true},
		{StatusVerifying, StatusFinalizing, true},
		{StatusFinalizing, StatusCompleted, true},
		{StatusQueued, StatusFailed, true},
		{StatusVerifying, StatusFailed, true},
		{StatusVerifying, StatusExtracting, false},
		{StatusVerifying, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusQueued, false},
		{StatusVerifying, StatusVerifying, false},
		{Status("paused"), StatusVerifying, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParentWorkAdvance(t *testing.T) {
	w := NewPodcastWork("w1", "owner", PodcastWork{Title: "Episode 1"})
	require.NoError(t, w.Validate())

	require.NoError(t, w.Advance(StatusExtracting))
	require.NoError(t, w.Advance(StatusVerifying))

	err := w.Advance(StatusQueued)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusVerifying, w.Status)

	require.NoError(t, w.Advance(StatusFailed))
	assert.True(t, w.Status.IsTerminal())
	assert.ErrorIs(t, w.Advance(StatusCompleted), ErrInvalidTransition)
}

func TestParentWorkValidate(t *testing.T) {
	live := NewLiveWork("w2", "owner", "Morning show")
	require.NoError(t, live.Validate())
	assert.Equal(t, "Morning show", live.Title())

	live.Podcast = &PodcastWork{Title: "x"}
	assert.Error(t, live.Validate())

	assert.Error(t, (&ParentWork{ID: "w3", Kind: "video"}).Validate())
}

func TestParentWorkClone(t *testing.T) {
	w := NewLiveWork("w4", "owner", "Show")
	w.Stats.Add(Verdict{Label: LabelVerified, Confidence: 80})

	c := w.Clone()
	c.Live.Title = "Other"
	c.Stats.LabelCounts[LabelVerified] = 5

	assert.Equal(t, "Show", w.Live.Title)
	assert.Equal(t, 1, w.Stats.LabelCounts[LabelVerified])
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Pipeline.ImportanceThreshold)
	assert.Equal(t, 70, cfg.Pipeline.FlagConfidenceCutoff)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 60, cfg.Credibility.DefaultScore)
	assert.Equal(t, []SourceType{SourceTypeNews, SourceTypeAcademic, SourceTypeGovernment}, cfg.Pipeline.ParsedSourceTypes())
}

func TestConfigValidate_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.ImportanceThreshold = 11
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Pipeline.SourceTypes = []string{"blogs"}
	assert.Error(t, cfg.Validate())
}

func TestParseStance(t *testing.T) {
	s, ok := ParseStance("contradicts")
	assert.True(t, ok)
	assert.Equal(t, StanceDisputes, s)

	_, ok = ParseStance("maybe")
	assert.False(t, ok)
}
