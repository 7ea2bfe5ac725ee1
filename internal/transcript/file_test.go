package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadTranscriptFile_JSONList(t *testing.T) {
	p := writeTranscript(t, "ep.json", `[
		{"text": "Welcome back.", "start_offset_ms": 0, "end_offset_ms": 2000, "source_confidence": 0.9},
		{"text": "  ", "start_offset_ms": 2000, "end_offset_ms": 2500},
		{"text": "Inflation hit 9 percent in 2022.", "start_offset_ms": 2500, "end_offset_ms": 6000}
	]`)

	units, err := LoadTranscriptFile(p)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Welcome back.", units[0].Text)
	assert.Equal(t, 0.9, units[0].SourceConfidence)
	assert.Equal(t, int64(2500), units[1].StartOffsetMs)
	assert.Equal(t, 1.0, units[1].SourceConfidence)
}

func TestLoadTranscriptFile_JSONObject(t *testing.T) {
	p := writeTranscript(t, "ep.json", `{"units": [{"text": "One unit.", "start_offset_ms": 100}]}`)

	units, err := LoadTranscriptFile(p)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, int64(100), units[0].StartOffsetMs)
}

func TestLoadTranscriptFile_PlainText(t *testing.T) {
	p := writeTranscript(t, "ep.txt", "Welcome back to the show.\n\nThe budget doubled since 2015.\n")

	units, err := LoadTranscriptFile(p)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, int64(0), units[0].StartOffsetMs)
	assert.Equal(t, int64(5*msPerWord), units[0].EndOffsetMs)
	assert.Equal(t, units[0].EndOffsetMs, units[1].StartOffsetMs)
	assert.Equal(t, "The budget doubled since 2015.", units[1].Text)
}

func TestLoadTranscriptFile_Errors(t *testing.T) {
	_, err := LoadTranscriptFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	p := writeTranscript(t, "bad.json", `[{"text": }`)
	_, err = LoadTranscriptFile(p)
	assert.Error(t, err)
}
