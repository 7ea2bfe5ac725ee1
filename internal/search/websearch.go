package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

// WebSearchProvider queries a SearxNG-compatible JSON endpoint.
// An optional scope such as "site:gov" is appended to every query.
type WebSearchProvider struct {
	client     *http.Client
	baseURL    string
	scope      string
	sourceType model.SourceType
	userAgent  string
}

// NewWebSearchProvider creates a web search provider
func NewWebSearchProvider(cfg model.WebSearchConfig, client *http.Client, userAgent string) *WebSearchProvider {
	if client == nil {
		client = http.DefaultClient
	}
	st, ok := model.ParseSourceType(cfg.SourceType)
	if !ok {
		st = model.SourceTypeOther
	}
	return &WebSearchProvider{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scope:      strings.TrimSpace(cfg.Scope),
		sourceType: st,
		userAgent:  userAgent,
	}
}

func (p *WebSearchProvider) Name() string { return "websearch" }
func (p *WebSearchProvider) Type() model.SourceType { return p.sourceType }

type webSearchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"publishedDate"`
	} `json:"results"`
}

// Search runs the scoped query
func (p *WebSearchProvider) Search(ctx context.Context, query string, limit int) ([]RawResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := query
	if p.scope != "" {
		q += " " + p.scope
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")

	var resp webSearchResponse
	if err := getJSON(ctx, p.client, p.baseURL+"/search?"+params.Encode(), p.userAgent, nil, &resp); err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}

	// SearxNG scores are unbounded; scale against the top hit
	top := 0.0
	for _, r := range resp.Results {
		if r.Score > top {
			top = r.Score
		}
	}

	results := make([]RawResult, 0, limit)
	for _, r := range resp.Results {
		if len(results) == limit {
			break
		}
		raw := RawResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		}
		if top > 0 {
			raw.Score = r.Score / top
		}
		if t, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
			raw.PublishedAt = &t
		}
		results = append(results, raw)
	}
	return results, nil
}
