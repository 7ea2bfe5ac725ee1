package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/cache"
	"github.com/ppiankov/truthcast/internal/credibility"
	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultLimit is the number of sources returned when the caller passes 0
	DefaultLimit = 10

	defaultProviderTimeout = 3 * time.Second
	defaultMaxConcurrent   = 16
	excerptConcurrency     = 4
)

// Gateway fans a query out to the configured providers and merges the results
type Gateway struct {
	providers    []Provider
	scorer       *credibility.Scorer
	timeout      time.Duration
	sem          *semaphore.Weighted
	limiter      *worker.Limiter
	rates        map[string]float64
	cache        cache.Cache
	cacheTTL     time.Duration
	fetcher      *ExcerptFetcher
	excerptChars int
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Gateway
type Option func(*Gateway)

// WithCache caches raw provider results per (provider, query)
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithLimiter rate limits provider calls, keyed "provider:<name>"
func WithLimiter(l *worker.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithProviderRates overrides the limiter rate, in requests per second, for
// the named providers
func WithProviderRates(rates map[string]float64) Option {
	return func(g *Gateway) { g.rates = rates }
}

// WithExcerptFetcher fills missing excerpts from the source page
func WithExcerptFetcher(f *ExcerptFetcher) Option {
	return func(g *Gateway) { g.fetcher = f }
}

// WithMetrics records provider outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the gateway logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway over providers.
// The semaphore caps outbound provider calls across all sessions sharing the gateway.
func NewGateway(providers []Provider, scorer *credibility.Scorer, cfg model.GatewayConfig, opts ...Option) *Gateway {
	if scorer == nil {
		scorer = credibility.NewScorer(nil)
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}

	g := &Gateway{
		providers:    providers,
		scorer:       scorer,
		timeout:      cfg.ProviderTimeout,
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cache:        cache.Noop{},
		excerptChars: cfg.ExcerptChars,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter != nil {
		for name, rps := range g.rates {
			g.limiter.SetRate(providerKey(name), rps, 0)
		}
	}
	return g
}

func providerKey(name string) string {
	return "provider:" + name
}

// Providers returns the names of the configured providers
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Search queries every provider of the requested types concurrently.
// Failed providers are logged and excluded; an error is returned only when
// every consulted provider failed.
func (g *Gateway) Search(ctx context.Context, query string, types []model.SourceType, limit int) ([]model.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	selected := g.selectProviders(types)
	if len(selected) == 0 {
		return []model.Source{}, nil
	}

	raw := make([][]RawResult, len(selected))
	errs := make([]error, len(selected))

	var eg errgroup.Group
	for i, p := range selected {
		i, p := i, p
		eg.Go(func() error {
			raw[i], errs[i] = g.query(ctx, p, query, limit)
			return nil
		})
	}
	_ = eg.Wait()

	var (
		sources []model.Source
		keys    []string
		failed  []error
	)
	now := g.now()
	for i, p := range selected {
		if errs[i] != nil {
			g.logger.Warn("provider excluded",
				zap.String("provider", p.Name()),
				zap.Error(errs[i]))
			failed = append(failed, errs[i])
			continue
		}
		for pos, r := range raw[i] {
			src, key, ok := toSource(r, pos, p, g.scorer, g.excerptChars, now)
			if !ok {
				continue
			}
			sources = append(sources, src)
			keys = append(keys, key)
		}
	}

	if len(failed) == len(selected) {
		return nil, errors.Join(failed...)
	}

	merged := mergeSources(sources, keys, limit)
	if g.fetcher != nil {
		g.fillExcerpts(ctx, query, merged)
	}
	return merged, nil
}

// selectProviders returns the providers serving any of types (all when empty)
func (g *Gateway) selectProviders(types []model.SourceType) []Provider {
	if len(types) == 0 {
		return g.providers
	}
	want := make(map[model.SourceType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Provider
	for _, p := range g.providers {
		if want[p.Type()] {
			out = append(out, p)
		}
	}
	return out
}

// query runs one provider call under the global cap, rate limit and timeout
func (g *Gateway) query(ctx context.Context, p Provider, query string, limit int) ([]RawResult, error) {
	key := cache.Key("search", p.Name(), query, strconv.Itoa(limit))
	if data, ok := g.cache.Get(ctx, key); ok {
		var cached []RawResult
		if err := json.Unmarshal(data, &cached); err == nil {
			g.record(p.Name(), metrics.OutcomeCached)
			return cached, nil
		}
	}

	pctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(pctx, 1); err != nil {
		return nil, g.providerError(p, pctx, err)
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(pctx, providerKey(p.Name())); err != nil {
			return nil, g.providerError(p, pctx, err)
		}
	}

	results, err := p.Search(pctx, query, limit)
	if err != nil {
		return nil, g.providerError(p, pctx, err)
	}
	g.record(p.Name(), metrics.OutcomeOK)

	if data, err := json.Marshal(results); err == nil {
		if err := g.cache.Set(ctx, key, data, g.cacheTTL); err != nil {
			g.logger.Debug("cache set failed", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
	return results, nil
}

// providerError classifies a provider failure as timeout or unavailable
func (g *Gateway) providerError(p Provider, pctx context.Context, err error) error {
	kind, outcome := ErrProviderUnavailable, metrics.OutcomeUnavailable
	// Limiter.Wait reports an unmeetable deadline before it expires
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "would exceed context deadline") {
		kind, outcome = ErrProviderTimeout, metrics.OutcomeTimeout
	}
	g.record(p.Name(), outcome)
	return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %v", kind, err)}
}

func (g *Gateway) record(provider, outcome string) {
	if g.metrics != nil {
		g.metrics.ProviderResult(provider, outcome)
	}
}

// fillExcerpts fetches page excerpts for sources that arrived without one
func (g *Gateway) fillExcerpts(ctx context.Context, claim string, sources []model.Source) {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(excerptConcurrency)

	for i := range sources {
		if sources[i].Excerpt != "" {
			continue
		}
		i := i
		eg.Go(func() error {
			excerpt, err := g.fetcher.Excerpt(ectx, sources[i].URL, claim)
			if err != nil {
				g.logger.Debug("excerpt fetch failed",
					zap.String("url", sources[i].URL),
					zap.Error(err))
				return nil
			}
			sources[i].Excerpt = excerpt
			return nil
		})
	}
	_ = eg.Wait()
}

// Probe runs a minimal query against every provider and reports reachability
func (g *Gateway) Probe(ctx context.Context) map[string]error {
	out := make(map[string]error, len(g.providers))
	for _, p := range g.providers {
		pctx, cancel := context.WithTimeout(ctx, g.timeout)
		_, err := p.Search(pctx, "health", 1)
		cancel()

		out[p.Name()] = err
		if g.metrics != nil {
			g.metrics.SetProviderUp(p.Name(), err == nil)
		}
		if err != nil {
			g.logger.Warn("provider probe failed", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
	return out
}
