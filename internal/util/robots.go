package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

// robotsTTL bounds how long a parsed robots.txt is trusted
const robotsTTL = 6 * time.Hour

// RobotsChecker checks robots.txt compliance before excerpt fetches
type RobotsChecker struct {
	cache      *gocache.Cache
	httpClient *http.Client
	userAgent  string
}

// NewRobotsChecker creates a new robots.txt checker
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RobotsChecker{
		cache:      gocache.New(robotsTTL, 30*time.Minute),
		httpClient: client,
		userAgent:  NormalizeUserAgent(userAgent),
	}
}

// CanFetch checks if the URL can be fetched according to robots.txt
// Returns (allowed, crawlDelay, error)
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	data, err := r.getRobotsData(ctx, parsed)
	if err != nil {
		// Unreachable robots.txt is treated as permissive
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := data.TestAgent(path, r.userAgent)

	crawlDelay := time.Duration(0)
	if group := data.FindGroup(r.userAgent); group != nil {
		crawlDelay = group.CrawlDelay
	}

	return allowed, crawlDelay, nil
}

// IsAllowed is a convenience method that returns only the allowed status
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	allowed, _, _ := r.CanFetch(ctx, rawURL)
	return allowed
}

// getRobotsData fetches and caches robots.txt data per scheme and host
func (r *RobotsChecker) getRobotsData(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := target.Scheme + "://" + target.Host
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// FromResponse maps 4xx to allow-all and 5xx to disallow-all
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache.SetDefault(key, data)
	return data, nil
}

// Clear clears the robots.txt cache
func (r *RobotsChecker) Clear() {
	r.cache.Flush()
}

// NormalizeUserAgent reduces a user agent string to its product token for robots.txt matching
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
