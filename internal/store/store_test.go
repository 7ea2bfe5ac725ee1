package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testVerdict(workID, claim string, offset int64, label model.Label, confidence int) model.Verdict {
	v := model.Verdict{
		ID:             "vrd-" + claim,
		ParentWorkID:   workID,
		ClaimID:        model.ClaimID(claim),
		ClaimText:      claim,
		ClaimHash:      model.ClaimHash(claim),
		OriginOffsetMs: offset,
		Label:          label,
		Confidence:     confidence,
		Explanation:    "explained",
		Perspectives: []model.Perspective{
			{SourceID: "src_1", Stance: model.StanceSupports, RelevanceScore: 80},
		},
		Sources: []model.Source{
			{ID: "src_1", Title: "Report", URL: "https://example.org/r", Domain: "example.org", Type: model.SourceTypeNews, CredibilityScore: 70, RelevanceScore: 80},
		},
		CreatedAt: time.Now().UTC(),
	}
	v.Normalize(70)
	return v
}

// runStoreSuite checks the behavior every Store implementation must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		s := newStore(t)
		w := model.NewPodcastWork("w1", "owner", model.PodcastWork{Title: "Episode 1", AudioRef: "s3://b/k"})
		require.NoError(t, s.CreateParentWork(ctx, w))

		got, err := s.LoadParentWork(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, model.WorkKindPodcast, got.Kind)
		assert.Equal(t, model.StatusQueued, got.Status)
		require.NotNil(t, got.Podcast)
		assert.Equal(t, "Episode 1", got.Podcast.Title)
		assert.Equal(t, "s3://b/k", got.Podcast.AudioRef)
		assert.Nil(t, got.Live)
		assert.WithinDuration(t, w.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		w := model.NewLiveWork("w1", "owner", "Show")
		require.NoError(t, s.CreateParentWork(ctx, w))
		assert.ErrorIs(t, s.CreateParentWork(ctx, w), ErrAlreadyExists)
	})

	t.Run("invalid work", func(t *testing.T) {
		s := newStore(t)
		w := model.NewLiveWork("w1", "owner", "Show")
		w.Podcast = &model.PodcastWork{}
		assert.Error(t, s.CreateParentWork(ctx, w))
	})

	t.Run("missing work", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadParentWork(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.SaveParentWorkStatus(ctx, "nope", model.StatusVerifying, 10, ""), ErrNotFound)
		assert.ErrorIs(t, s.SaveParentWorkStats(ctx, "nope", model.Stats{}), ErrNotFound)
	})

	t.Run("status and stats", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateParentWork(ctx, model.NewLiveWork("w1", "owner", "Show")))

		require.NoError(t, s.SaveParentWorkStatus(ctx, "w1", model.StatusVerifying, 140, ""))
		stats := model.Stats{}
		stats.Add(testVerdict("w1", "a", 0, model.LabelFalse, 90))
		require.NoError(t, s.SaveParentWorkStats(ctx, "w1", stats))

		got, err := s.LoadParentWork(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusVerifying, got.Status)
		assert.Equal(t, 100, got.ProgressPct)
		assert.Equal(t, 1, got.Stats.TotalClaims)
		assert.Equal(t, 1, got.Stats.LabelCounts[model.LabelFalse])
		require.NotNil(t, got.Live)
		assert.Nil(t, got.Live.EndedAt)
	})

	t.Run("save full work", func(t *testing.T) {
		s := newStore(t)
		w := model.NewLiveWork("w1", "owner", "Show")
		require.NoError(t, s.CreateParentWork(ctx, w))

		ended := time.Now().UTC()
		w.Live.EndedAt = &ended
		w.Status = model.StatusCompleted
		w.ProgressPct = 100
		w.Stats.DurationMs = 1234
		require.NoError(t, s.SaveParentWork(ctx, w))

		got, err := s.LoadParentWork(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.Equal(t, int64(1234), got.Stats.DurationMs)
		require.NotNil(t, got.Live.EndedAt)
		assert.WithinDuration(t, ended, *got.Live.EndedAt, time.Millisecond)
	})

	t.Run("verdict upsert keeps one row per claim", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateParentWork(ctx, model.NewLiveWork("w1", "owner", "Show")))

		first := testVerdict("w1", "Inflation hit 9 percent in 2022", 5000, model.LabelVerified, 80)
		require.NoError(t, s.SaveVerdict(ctx, first))

		again := testVerdict("w1", "inflation hit 9 percent, in 2022!", 5000, model.LabelDisputed, 55)
		again.ID = "vrd-other"
		require.NoError(t, s.SaveVerdict(ctx, again))

		got, err := s.ListVerdicts(ctx, "w1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, model.LabelDisputed, got[0].Label)
		assert.Equal(t, 55, got[0].Confidence)
		assert.True(t, got[0].IsFlagged)
		require.Len(t, got[0].Perspectives, 1)
		require.Len(t, got[0].Sources, 1)
		assert.Equal(t, "example.org", got[0].Sources[0].Domain)
	})

	t.Run("verdicts ordered by offset", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateParentWork(ctx, model.NewLiveWork("w1", "owner", "Show")))
		require.NoError(t, s.CreateParentWork(ctx, model.NewLiveWork("w2", "owner", "Other")))

		require.NoError(t, s.SaveVerdict(ctx, testVerdict("w1", "late claim", 9000, model.LabelPartial, 60)))
		require.NoError(t, s.SaveVerdict(ctx, testVerdict("w1", "early claim", 1000, model.LabelVerified, 85)))
		require.NoError(t, s.SaveVerdict(ctx, testVerdict("w2", "other work", 0, model.LabelFalse, 90)))

		got, err := s.ListVerdicts(ctx, "w1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "early claim", got[0].ClaimText)
		assert.Equal(t, "late claim", got[1].ClaimText)

		empty, err := s.ListVerdicts(ctx, "none")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent verdict writes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateParentWork(ctx, model.NewLiveWork("w1", "owner", "Show")))

		claims := []string{"one", "two", "three", "four", "five", "six", "seven", "eight"}
		var wg sync.WaitGroup
		for i, c := range claims {
			i, c := i, c
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.SaveVerdict(ctx, testVerdict("w1", c, int64(i), model.LabelPartial, 50)))
			}()
		}
		wg.Wait()

		got, err := s.ListVerdicts(ctx, "w1")
		require.NoError(t, err)
		assert.Len(t, got, len(claims))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "truthcast.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	w := model.NewPodcastWork("w1", "owner", model.PodcastWork{Title: "Original"})
	require.NoError(t, s.CreateParentWork(ctx, w))

	w.Podcast.Title = "mutated"
	got, err := s.LoadParentWork(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Podcast.Title)

	got.Podcast.Title = "mutated again"
	again, err := s.LoadParentWork(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Podcast.Title)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, model.StoreConfig{Driver: "memory", MaxRetries: 2}, RetryLogger(zap.NewNop()))
	require.NoError(t, err)
	_, ok := s.(*RetryStore)
	assert.True(t, ok, "expected retry wrapper when MaxRetries > 0")

	s, err = Open(ctx, model.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	_, ok = s.(*Memory)
	assert.True(t, ok)

	s, err = Open(ctx, model.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, model.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)

	_, err = Open(ctx, model.StoreConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	w := model.NewPodcastWork("w1", "o", model.PodcastWork{Title: "T", ContentType: "audio/mpeg"})
	data, err := encodePayload(w)
	require.NoError(t, err)
	assert.NotContains(t, data, "live")

	var out model.ParentWork
	require.NoError(t, decodePayload(data, &out))
	require.NotNil(t, out.Podcast)
	assert.Equal(t, "audio/mpeg", out.Podcast.ContentType)

	assert.Error(t, decodePayload("{not json", &out))
}
