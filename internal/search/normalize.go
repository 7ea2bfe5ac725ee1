package search

import (
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/microcosm-cc/bluemonday"
	"github.com/ppiankov/truthcast/internal/credibility"
	"github.com/ppiankov/truthcast/internal/model"
)

// Tracking parameters dropped during URL normalization
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"mc_cid": true,
	"mc_eid": true,
}

var stripTags = bluemonday.StrictPolicy()

// NormalizeURL returns the de-duplication key of a URL: host without "www.",
// path without trailing slash and the query without tracking parameters.
// The scheme and fragment are ignored.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")

	query := parsed.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			query.Del(key)
		}
	}

	key := host + path
	if encoded := query.Encode(); encoded != "" {
		key += "?" + encoded // Encode sorts by key
	}
	return key
}

// SourceID derives a stable source ID from its normalized URL
func SourceID(normalizedURL string) string {
	return "src_" + strconv.FormatUint(xxhash.Checksum64([]byte(normalizedURL)), 16)
}

// CleanSnippet strips markup from a provider snippet and bounds its length
func CleanSnippet(s string, maxChars int) string {
	text := html.UnescapeString(stripTags.Sanitize(s))
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 {
		runes := []rune(text)
		if len(runes) > maxChars {
			text = strings.TrimSpace(string(runes[:maxChars])) + "…"
		}
	}
	return text
}

// rankRelevance maps a provider score or result position to [0,100]
func rankRelevance(r RawResult, position int) int {
	if r.Score > 0 {
		return model.Clamp(int(r.Score*100+0.5), 0, 100)
	}
	return model.Clamp(100-position*8, 20, 100)
}

// toSource converts a raw provider result into a scored Source
func toSource(r RawResult, position int, p Provider, scorer *credibility.Scorer, excerptChars int, now time.Time) (model.Source, string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return model.Source{}, "", false
	}

	key := NormalizeURL(r.URL)
	title := CleanSnippet(r.Title, 0)
	if title == "" {
		title = credibility.Domain(r.URL)
	}

	return model.Source{
		ID:               SourceID(key),
		Title:            title,
		URL:              r.URL,
		Domain:           credibility.Domain(r.URL),
		Type:             scorer.Classify(r.URL, p.Type()),
		CredibilityScore: scorer.Score(r.URL),
		RelevanceScore:   rankRelevance(r, position),
		Excerpt:          CleanSnippet(r.Snippet, excerptChars),
		Provider:         p.Name(),
		PublishedAt:      r.PublishedAt,
		RetrievedAt:      now,
	}, key, true
}

// mergeSources de-duplicates by normalized URL, ranks by credibility then
// relevance and truncates to limit
func mergeSources(sources []model.Source, keys []string, limit int) []model.Source {
	index := make(map[string]int, len(sources))
	out := make([]model.Source, 0, len(sources))

	for i, src := range sources {
		if j, ok := index[keys[i]]; ok {
			existing := &out[j]
			if src.RelevanceScore > existing.RelevanceScore {
				existing.RelevanceScore = src.RelevanceScore
			}
			if existing.Excerpt == "" {
				existing.Excerpt = src.Excerpt
			}
			continue
		}
		index[keys[i]] = len(out)
		out = append(out, src)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CredibilityScore != out[j].CredibilityScore {
			return out[i].CredibilityScore > out[j].CredibilityScore
		}
		return out[i].RelevanceScore > out[j].RelevanceScore
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
