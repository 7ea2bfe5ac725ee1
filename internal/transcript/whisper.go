// Package transcript turns recordings and transcript files into transcript units
package transcript

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/util"
	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber transcribes audio with the OpenAI transcription API
type WhisperTranscriber struct {
	client  *openai.Client
	model   string
	source  AudioSource
	allowed []string
}

// NewWhisperTranscriber creates a transcriber reading audio from source
func NewWhisperTranscriber(cfg model.TranscriptConfig, httpCfg model.HTTPConfig, source AudioSource) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transcription API key is required")
	}
	if source == nil {
		return nil, errors.New("audio source is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
		},
	}

	m := cfg.Model
	if m == "" {
		m = openai.Whisper1
	}
	return &WhisperTranscriber{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   m,
		source:  source,
		allowed: cfg.AllowedContentTypes,
	}, nil
}

// Transcribe opens audioRef and returns its timed segments as units
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioRef string) ([]model.TranscriptUnit, error) {
	audio, err := w.source.Open(ctx, audioRef)
	if err != nil {
		return nil, err
	}
	defer func() { _ = audio.Body.Close() }()

	if err := ValidateContentType(audio.ContentType, w.allowed); err != nil {
		return nil, err
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audio.Name,
		Reader:   audio.Body,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	units := make([]model.TranscriptUnit, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		units = append(units, model.TranscriptUnit{
			Text:             text,
			StartOffsetMs:    int64(seg.Start * 1000),
			EndOffsetMs:      int64(seg.End * 1000),
			SourceConfidence: segmentConfidence(seg.AvgLogprob),
		})
	}

	// Some deployments return text without segments
	if len(units) == 0 && strings.TrimSpace(resp.Text) != "" {
		units = append(units, model.TranscriptUnit{
			Text:             strings.TrimSpace(resp.Text),
			EndOffsetMs:      int64(resp.Duration * 1000),
			SourceConfidence: 1,
		})
	}
	return units, nil
}

// segmentConfidence maps a segment's mean token log-probability to 0..1
func segmentConfidence(avgLogprob float64) float64 {
	c := math.Exp(avgLogprob)
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
