package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

// NewsAPIProvider searches news coverage through newsapi.org
type NewsAPIProvider struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	language  string
	userAgent string
}

// NewNewsAPIProvider creates a newsapi.org provider
func NewNewsAPIProvider(cfg model.NewsAPIConfig, client *http.Client, userAgent string) *NewsAPIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://newsapi.org"
	}
	return &NewsAPIProvider{
		client:    client,
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    cfg.APIKey,
		language:  cfg.Language,
		userAgent: userAgent,
	}
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }
func (p *NewsAPIProvider) Type() model.SourceType { return model.SourceTypeNews }

type newsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

// Search queries /v2/everything sorted by relevancy
func (p *NewsAPIProvider) Search(ctx context.Context, query string, limit int) ([]RawResult, error) {
	if p.apiKey == "" {
		return nil, errors.New("newsapi: api key not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", strconv.Itoa(limit))
	if p.language != "" {
		params.Set("language", p.language)
	}

	var resp newsAPIResponse
	err := getJSON(ctx, p.client, p.baseURL+"/v2/everything?"+params.Encode(), p.userAgent,
		map[string]string{"X-Api-Key": p.apiKey}, &resp)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s: %s", resp.Code, resp.Message)
	}

	results := make([]RawResult, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" || a.Title == "[Removed]" {
			continue
		}
		snippet := a.Description
		if snippet == "" {
			snippet = a.Content
		}
		r := RawResult{
			Title:   a.Title,
			URL:     a.URL,
			Snippet: snippet,
		}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			r.PublishedAt = &t
		}
		results = append(results, r)
	}
	return results, nil
}
