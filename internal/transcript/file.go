package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
)

// msPerWord paces synthesized offsets for plain-text transcripts (about 150 wpm)
const msPerWord = 400

// LoadTranscriptFile reads a pre-transcribed recording. JSON files hold a list
// of units or an object with a "units" list; any other file is plain text with
// one unit per non-empty line.
func LoadTranscriptFile(path string) ([]model.TranscriptUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if strings.EqualFold(filepath.Ext(path), ".json") || (len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{')) {
		units, err := parseJSONTranscript(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parse transcript %s: %w", path, err)
		}
		return units, nil
	}
	return ParseText(string(data)), nil
}

func parseJSONTranscript(data []byte) ([]model.TranscriptUnit, error) {
	var units []model.TranscriptUnit
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Units []model.TranscriptUnit `json:"units"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		units = wrapped.Units
	} else if err := json.Unmarshal(data, &units); err != nil {
		return nil, err
	}

	out := units[:0]
	for _, u := range units {
		u.Text = strings.TrimSpace(u.Text)
		if u.Text == "" {
			continue
		}
		if u.SourceConfidence == 0 {
			u.SourceConfidence = 1
		}
		out = append(out, u)
	}
	return out, nil
}

// ParseText turns plain text into units, one per non-empty line, with offsets
// paced by word count
func ParseText(text string) []model.TranscriptUnit {
	var (
		units  []model.TranscriptUnit
		offset int64
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		duration := int64(len(strings.Fields(line))) * msPerWord
		units = append(units, model.TranscriptUnit{
			Text:             line,
			StartOffsetMs:    offset,
			EndOffsetMs:      offset + duration,
			SourceConfidence: 1,
		})
		offset += duration
	}
	return units
}
