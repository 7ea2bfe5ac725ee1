package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

var (
	// ErrProviderUnavailable is returned when a provider errors or responds badly
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout is returned when a provider exceeds its deadline
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrEmptyQuery is returned for blank search queries
	ErrEmptyQuery = errors.New("empty query")
)

// Provider is one external source search backend
type Provider interface {
	Name() string
	Type() model.SourceType
	Search(ctx context.Context, query string, limit int) ([]RawResult, error)
}

// RawResult is a provider hit before normalization.
// Results are returned best match first.
type RawResult struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Score       float64    `json:"score,omitempty"` // provider relevance in [0,1] when known
}

// ProviderError attributes a failure to one provider
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
