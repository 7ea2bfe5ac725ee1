package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/truthcast/internal/cache"
	"github.com/ppiankov/truthcast/internal/credibility"
	"github.com/ppiankov/truthcast/internal/extract"
	"github.com/ppiankov/truthcast/internal/llm"
	"github.com/ppiankov/truthcast/internal/metrics"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/search"
	"github.com/ppiankov/truthcast/internal/session"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/ppiankov/truthcast/internal/transcript"
	"github.com/ppiankov/truthcast/internal/util"
	"github.com/ppiankov/truthcast/internal/verdict"
	"github.com/ppiankov/truthcast/internal/worker"
	"go.uber.org/zap"
)

// app holds the long-lived collaborators shared by serve and verify
type app struct {
	cfg         *model.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	store       store.Store
	gateway     *search.Gateway
	deps        *session.Deps
	transcriber session.Transcriber
	closers     []func() error
}

// newApp builds every component from cfg. Close releases them.
func newApp(ctx context.Context, cfg *model.Config, logger *zap.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: m}

	st, err := store.Open(ctx, cfg.Store, store.RetryLogger(logger), store.RetryMetrics(m))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	a.gateway = a.buildGateway()

	judge, err := llm.NewJudge(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create judge: %w", err)
	}
	if judge == nil {
		logger.Warn("no LLM provider configured, every verdict will be uncertain")
	} else if !judge.IsAvailable(ctx) {
		logger.Warn("LLM judge is not reachable", zap.String("provider", judge.Name()))
	}

	a.deps = &session.Deps{
		Store:       st,
		Extractor:   extract.NewHeuristicExtractor(),
		Searcher:    a.gateway,
		Synthesizer: verdict.NewSynthesizer(judge, cfg.Pipeline, logger.Named("verdict")),
		Config:      cfg.Pipeline,
		Metrics:     m,
		Logger:      logger.Named("session"),
	}

	if cfg.Transcript.APIKey != "" {
		t, err := a.buildTranscriber(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.transcriber = t
	}

	return a, nil
}

// buildGateway wires the enabled providers with cache, rate limiting and excerpts
func (a *app) buildGateway() *search.Gateway {
	cfg := a.cfg
	client := util.NewHTTPClient(cfg.HTTP)

	var providers []search.Provider
	if cfg.Providers.NewsAPI.Enabled {
		if cfg.Providers.NewsAPI.APIKey == "" {
			a.logger.Warn("newsapi enabled without an API key, skipping")
		} else {
			providers = append(providers, search.NewNewsAPIProvider(cfg.Providers.NewsAPI, client, cfg.HTTP.UserAgent))
		}
	}
	if cfg.Providers.EuropePMC.Enabled {
		providers = append(providers, search.NewEuropePMCProvider(cfg.Providers.EuropePMC, client, cfg.HTTP.UserAgent))
	}
	if cfg.Providers.WebSearch.Enabled {
		providers = append(providers, search.NewWebSearchProvider(cfg.Providers.WebSearch, client, cfg.HTTP.UserAgent))
	}
	if len(providers) == 0 {
		a.logger.Warn("no source providers enabled")
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	opts := []search.Option{
		search.WithLimiter(limiter),
		search.WithProviderRates(cfg.RateLimiting.ProviderRates),
		search.WithMetrics(a.metrics),
		search.WithLogger(a.logger.Named("search")),
	}
	if c := a.buildCache(); c != nil {
		opts = append(opts, search.WithCache(c, cfg.Cache.TTL))
	}
	if cfg.Gateway.FetchExcerpts {
		opts = append(opts, search.WithExcerptFetcher(search.NewExcerptFetcher(client, cfg.HTTP, cfg.Gateway.ExcerptChars, limiter)))
	}

	return search.NewGateway(providers, credibility.NewScorer(&cfg.Credibility), cfg.Gateway, opts...)
}

// buildCache returns an in-process cache, layered over redis when configured
func (a *app) buildCache() cache.Cache {
	cfg := a.cfg.Cache
	if !cfg.Enabled {
		return nil
	}
	front := cache.NewMemoryCache(cfg.TTL, cfg.TTL/2)
	if cfg.RedisAddr == "" {
		return front
	}
	back := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisDB, cfg.Prefix, cfg.TTL)
	a.closers = append(a.closers, back.Close)
	return cache.NewLayeredCache(front, back)
}

// buildTranscriber reads local audio under AudioRoot and s3:// objects when S3 is configured
func (a *app) buildTranscriber(ctx context.Context) (*transcript.WhisperTranscriber, error) {
	cfg := a.cfg.Transcript
	source := transcript.RoutedSource{Files: transcript.FileAudioSource{Root: cfg.AudioRoot}}
	if cfg.S3Region != "" || cfg.S3Endpoint != "" {
		s3src, err := transcript.NewS3AudioSource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		source.S3 = s3src
	}
	return transcript.NewWhisperTranscriber(cfg, a.cfg.HTTP, source)
}

// newManager creates the session manager over the shared deps
func (a *app) newManager() (*session.Manager, error) {
	var opts []session.ManagerOption
	if a.transcriber != nil {
		opts = append(opts, session.WithTranscriber(a.transcriber))
	}
	return session.NewManager(*a.deps, opts...)
}

// Close releases the store and cache connections
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
