package transcript

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verboseResponse = `{
	"task": "transcribe",
	"language": "english",
	"duration": 9.5,
	"text": "Welcome back. Unemployment fell to 3.5 percent in 2023.",
	"segments": [
		{"id": 0, "start": 0.0, "end": 2.1, "text": " Welcome back.", "avg_logprob": -0.1},
		{"id": 1, "start": 2.1, "end": 6.4, "text": " Unemployment fell to 3.5 percent in 2023.", "avg_logprob": -0.35},
		{"id": 2, "start": 6.4, "end": 9.5, "text": "   ", "avg_logprob": -2.0}
	]
}`

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("ID3fake-mp3-bytes"), 0o644))
	return p
}

func newWhisperServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "ID3fake-mp3-bytes", string(data))
		assert.Equal(t, "episode.mp3", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWhisperTranscriber_Transcribe(t *testing.T) {
	srv := newWhisperServer(t, verboseResponse)
	audio := writeAudio(t, "episode.mp3")

	cfg := model.DefaultConfig().Transcript
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL + "/v1"
	tr, err := NewWhisperTranscriber(cfg, model.HTTPConfig{}, FileAudioSource{})
	require.NoError(t, err)

	units, err := tr.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "Welcome back.", units[0].Text)
	assert.Equal(t, int64(0), units[0].StartOffsetMs)
	assert.Equal(t, int64(2100), units[0].EndOffsetMs)
	assert.InDelta(t, 0.905, units[0].SourceConfidence, 0.001)

	assert.Equal(t, "Unemployment fell to 3.5 percent in 2023.", units[1].Text)
	assert.Equal(t, int64(2100), units[1].StartOffsetMs)
	assert.InDelta(t, 0.705, units[1].SourceConfidence, 0.001)
}

func TestWhisperTranscriber_TextOnlyResponse(t *testing.T) {
	srv := newWhisperServer(t, `{"text": "Just one block of text.", "duration": 3.0}`)
	audio := writeAudio(t, "episode.mp3")

	tr, err := NewWhisperTranscriber(model.TranscriptConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, model.HTTPConfig{}, FileAudioSource{})
	require.NoError(t, err)

	units, err := tr.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "Just one block of text.", units[0].Text)
	assert.Equal(t, int64(3000), units[0].EndOffsetMs)
}

func TestWhisperTranscriber_RejectsContentType(t *testing.T) {
	audio := writeAudio(t, "notes.txt")

	cfg := model.DefaultConfig().Transcript
	cfg.APIKey = "test-key"
	cfg.BaseURL = "http://127.0.0.1:1"
	tr, err := NewWhisperTranscriber(cfg, model.HTTPConfig{}, FileAudioSource{})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), audio)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestNewWhisperTranscriber_Validation(t *testing.T) {
	_, err := NewWhisperTranscriber(model.TranscriptConfig{}, model.HTTPConfig{}, FileAudioSource{})
	assert.Error(t, err)

	_, err = NewWhisperTranscriber(model.TranscriptConfig{APIKey: "k"}, model.HTTPConfig{}, nil)
	assert.Error(t, err)
}

func TestSegmentConfidence(t *testing.T) {
	assert.Equal(t, 1.0, segmentConfidence(0))
	assert.Equal(t, 1.0, segmentConfidence(0.5))
	assert.InDelta(t, 0.367, segmentConfidence(-1), 0.001)
	assert.Less(t, segmentConfidence(-20), 0.001)
}
