package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscriber returns fixed units for a known audio reference
type fakeTranscriber struct {
	units map[string][]model.TranscriptUnit
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioRef string) ([]model.TranscriptUnit, error) {
	units, ok := f.units[audioRef]
	if !ok {
		return nil, errors.New("audio not found")
	}
	return units, nil
}

func newTestManager(t *testing.T, st store.Store, ex *fakeExtractor, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(*testDeps(st, ex, &fakeSynth{}), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func TestNewManager_RequiresDeps(t *testing.T) {
	_, err := NewManager(Deps{})
	assert.Error(t, err)
}

func TestManager_StartBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestManager(t, st, podcastExtractor())

	w := model.NewPodcastWork("pod-1", "owner", model.PodcastWork{Title: "Episode"})
	h, err := m.StartBatch(ctx, w, podcastUnits())
	require.NoError(t, err)
	assert.Equal(t, "pod-1", h.ID())
	assert.Nil(t, h.Live())

	require.NoError(t, h.Wait(ctx))

	status, err := m.GetStatus(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressPct)
	assert.Equal(t, 2, status.Summary.TotalClaims)

	verdicts, err := m.Verdicts(ctx, "pod-1")
	require.NoError(t, err)
	assert.Len(t, verdicts, 2)

	// Completed works cannot be started again
	_, err = m.StartBatch(ctx, w, podcastUnits())
	assert.ErrorIs(t, err, ErrWorkTerminal)
}

func TestManager_StartVerificationTranscribesPodcast(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	tr := &fakeTranscriber{units: map[string][]model.TranscriptUnit{"s3://shows/ep1.mp3": podcastUnits()}}
	m := newTestManager(t, st, podcastExtractor(), WithTranscriber(tr))

	w := model.NewPodcastWork("pod-1", "owner", model.PodcastWork{Title: "Episode", AudioRef: "s3://shows/ep1.mp3"})
	h, err := m.StartVerification(ctx, w)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	status, err := m.GetStatus(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)

	missing := model.NewPodcastWork("pod-2", "owner", model.PodcastWork{Title: "Lost", AudioRef: "s3://shows/none.mp3"})
	h, err = m.StartVerification(ctx, missing)
	require.NoError(t, err)
	assert.Error(t, h.Wait(ctx))

	status, err = m.GetStatus(ctx, "pod-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "transcribe")
}

func TestManager_StartVerificationWithoutTranscriber(t *testing.T) {
	m := newTestManager(t, store.NewMemory(), podcastExtractor())
	w := model.NewPodcastWork("pod-1", "owner", model.PodcastWork{Title: "Episode", AudioRef: "ep1.mp3"})

	_, err := m.StartVerification(context.Background(), w)
	assert.ErrorIs(t, err, ErrNoTranscriber)
}

func TestManager_LiveSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := newTestManager(t, st, liveExtractor())

	w := model.NewLiveWork("live-1", "owner", "Morning show")
	h, err := m.StartVerification(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, h.Live())

	_, err = m.StartVerification(ctx, w)
	assert.ErrorIs(t, err, ErrSessionActive)

	claims, err := m.PushSegment(ctx, "live-1", model.TranscriptUnit{Text: "the city budget doubled since 2015", StartOffsetMs: 4200})
	require.NoError(t, err)
	assert.Len(t, claims, 1)

	waitFor(t, func() bool {
		status, err := m.GetStatus(ctx, "live-1")
		return err == nil && status.Summary.TotalClaims == 1
	})
	status, err := m.GetStatus(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerifying, status.Status)
	assert.Equal(t, 100, status.ProgressPct)

	final, err := m.EndLiveSession(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, final.Status)
	require.NoError(t, h.Wait(ctx))

	_, err = m.PushSegment(ctx, "live-1", model.TranscriptUnit{Text: "late"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.EndLiveSession(ctx, "live-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	status, err = m.GetStatus(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
	assert.Equal(t, 1, status.Summary.TotalClaims)
}

func TestManager_CancelLiveHandle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemory(), liveExtractor())

	h, err := m.StartVerification(ctx, model.NewLiveWork("live-1", "owner", "Show"))
	require.NoError(t, err)

	h.Cancel()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(waitCtx))

	status, err := m.GetStatus(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
}

func TestManager_GetStatusUnknown(t *testing.T) {
	m := newTestManager(t, store.NewMemory(), liveExtractor())
	_, err := m.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.Verdicts(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_ShutdownEndsLiveSessions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m, err := NewManager(*testDeps(st, liveExtractor(), &fakeSynth{}))
	require.NoError(t, err)

	h, err := m.StartVerification(ctx, model.NewLiveWork("live-1", "owner", "Show"))
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	select {
	case <-h.Done():
	default:
		t.Fatal("expected live handle to be finished after shutdown")
	}

	w, err := st.LoadParentWork(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, w.Status)

	_, err = m.StartVerification(ctx, model.NewLiveWork("live-2", "owner", "Late"))
	assert.ErrorIs(t, err, ErrManagerClosed)
}
