package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/extract"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/util"
	"github.com/ppiankov/truthcast/internal/worker"
)

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// ErrDisallowed is returned when robots.txt forbids fetching a page
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ExcerptFetcher downloads source pages and extracts the passage most relevant to a claim
type ExcerptFetcher struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	userAgent  string
	maxBytes   int64
	maxChars   int
}

// NewExcerptFetcher creates a fetcher sharing the outbound client and host limiter
func NewExcerptFetcher(client *http.Client, cfg model.HTTPConfig, maxChars int, limiter *worker.Limiter) *ExcerptFetcher {
	if client == nil {
		client = util.NewHTTPClient(cfg)
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	if maxChars <= 0 {
		maxChars = 600
	}
	return &ExcerptFetcher{
		httpClient: client,
		robots:     util.NewRobotsChecker(client, cfg.UserAgent),
		limiter:    limiter,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxChars:   maxChars,
	}
}

// Excerpt fetches rawURL and returns its passage closest to claim
func (f *ExcerptFetcher) Excerpt(ctx context.Context, rawURL, claim string) (string, error) {
	allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}

	if f.limiter != nil {
		if err := f.limiter.WaitURL(ctx, rawURL, crawlDelay); err != nil {
			return "", err
		}
	}

	body, err := f.fetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return extract.PageExcerpt(body, claim, f.maxChars)
}

// fetchResult is one page fetch attempt
type fetchResult struct {
	body       string
	statusCode int
	err        error
}

// fetch performs a single GET with a body size limit
func (f *ExcerptFetcher) fetch(ctx context.Context, rawURL string) fetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fetchResult{err: fmt.Errorf("fetch: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchResult{statusCode: resp.StatusCode, err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return fetchResult{statusCode: resp.StatusCode, err: fmt.Errorf("unsupported content type %q", ct)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return fetchResult{statusCode: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}
	return fetchResult{body: string(body), statusCode: resp.StatusCode}
}

// fetchWithRetry retries transient failures with exponential backoff
func (f *ExcerptFetcher) fetchWithRetry(ctx context.Context, rawURL string) (string, error) {
	var result fetchResult
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		result = f.fetch(ctx, rawURL)
		if result.err == nil {
			return result.body, nil
		}
		if !isRetryable(result) || ctx.Err() != nil {
			break
		}
		if attempt < fetchMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
			fetchSleepFunc(backoff)
		}
	}
	return "", result.err
}

// isRetryable returns true for results that indicate transient failures
func isRetryable(r fetchResult) bool {
	if r.statusCode >= 500 && r.statusCode < 600 {
		return true
	}
	if r.statusCode == http.StatusTooManyRequests {
		return true
	}
	if r.statusCode == 0 && r.err != nil {
		return isRetryableNetworkError(r.err.Error())
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
