package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the complete runtime configuration
type Config struct {
	Pipeline     PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Gateway      GatewayConfig     `mapstructure:"gateway" yaml:"gateway" json:"gateway"`
	Credibility  CredibilityConfig `mapstructure:"credibility" yaml:"credibility" json:"credibility"`
	Providers    ProvidersConfig   `mapstructure:"providers" yaml:"providers" json:"providers"`
	LLM          LLMConfig         `mapstructure:"llm" yaml:"llm" json:"llm"`
	Store        StoreConfig       `mapstructure:"store" yaml:"store" json:"store"`
	Cache        CacheConfig       `mapstructure:"cache" yaml:"cache" json:"cache"`
	Transcript   TranscriptConfig  `mapstructure:"transcript" yaml:"transcript" json:"transcript"`
	Server       ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Log          LogConfig         `mapstructure:"log" yaml:"log" json:"log"`
	HTTP         HTTPConfig        `mapstructure:"http" yaml:"http" json:"http"`
	RateLimiting RateLimitConfig   `mapstructure:"rate_limiting" yaml:"rate_limiting" json:"rate_limiting"`
}

// PipelineConfig controls claim selection and verification sessions
type PipelineConfig struct {
	ImportanceThreshold  int           `mapstructure:"importance_threshold" yaml:"importance_threshold" json:"importance_threshold" validate:"min=1,max=10"`
	FlagConfidenceCutoff int           `mapstructure:"flag_confidence_cutoff" yaml:"flag_confidence_cutoff" json:"flag_confidence_cutoff" validate:"min=0,max=100"`
	Workers              int           `mapstructure:"workers" yaml:"workers" json:"workers" validate:"min=1,max=64"`
	QueueSize            int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size" validate:"min=1"`
	SourcesPerClaim      int           `mapstructure:"sources_per_claim" yaml:"sources_per_claim" json:"sources_per_claim" validate:"min=1,max=50"`
	SourceTypes          []string      `mapstructure:"source_types" yaml:"source_types" json:"source_types" validate:"dive,oneof=news academic government other"`
	MinRelevance         int           `mapstructure:"min_relevance" yaml:"min_relevance" json:"min_relevance" validate:"min=0,max=100"`
	JudgeConcurrency     int           `mapstructure:"judge_concurrency" yaml:"judge_concurrency" json:"judge_concurrency" validate:"min=1"`
	LiveGracePeriod      time.Duration `mapstructure:"live_grace_period" yaml:"live_grace_period" json:"live_grace_period"`
}

// GatewayConfig controls outbound source provider calls
type GatewayConfig struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout" json:"provider_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent" validate:"min=1"`
	FetchExcerpts   bool          `mapstructure:"fetch_excerpts" yaml:"fetch_excerpts" json:"fetch_excerpts"`
	ExcerptChars    int           `mapstructure:"excerpt_chars" yaml:"excerpt_chars" json:"excerpt_chars" validate:"min=0"`
}

// CredibilityConfig holds domain reputation overrides and classification lists
type CredibilityConfig struct {
	DefaultScore      int            `mapstructure:"default_score" yaml:"default_score" json:"default_score" validate:"min=0,max=100"`
	DomainScores      map[string]int `mapstructure:"domain_scores" yaml:"domain_scores,omitempty" json:"domain_scores,omitempty" validate:"dive,min=0,max=100"`
	GovernmentDomains []string       `mapstructure:"government_domains" yaml:"government_domains,omitempty" json:"government_domains,omitempty"`
	AcademicDomains   []string       `mapstructure:"academic_domains" yaml:"academic_domains,omitempty" json:"academic_domains,omitempty"`
}

// ProvidersConfig enables the individual search providers
type ProvidersConfig struct {
	NewsAPI   NewsAPIConfig   `mapstructure:"newsapi" yaml:"newsapi" json:"newsapi"`
	EuropePMC EuropePMCConfig `mapstructure:"europepmc" yaml:"europepmc" json:"europepmc"`
	WebSearch WebSearchConfig `mapstructure:"websearch" yaml:"websearch" json:"websearch"`
}

// NewsAPIConfig configures the newsapi.org provider
type NewsAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Language string `mapstructure:"language" yaml:"language" json:"language"`
}

// EuropePMCConfig configures the Europe PMC literature provider
type EuropePMCConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"omitempty,url"`
}

// WebSearchConfig configures a SearxNG-compatible JSON search endpoint
type WebSearchConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	SourceType string `mapstructure:"source_type" yaml:"source_type" json:"source_type" validate:"omitempty,oneof=news academic government other"`
	Scope      string `mapstructure:"scope" yaml:"scope" json:"scope"` // Appended to every query, e.g. "site:gov"
}

// LLMConfig configures the reasoning backend used to judge sources
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider" json:"provider" validate:"omitempty,oneof=openai anthropic claude ollama"`
	Model     string `mapstructure:"model" yaml:"model" json:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"min=0"` // seconds
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens" validate:"min=0"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=memory sqlite postgres"`
	DSN            string        `mapstructure:"dsn" yaml:"dsn,omitempty" json:"-" validate:"required_unless=Driver memory"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay" json:"retry_base_delay"`
}

// CacheConfig controls the provider result cache
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisDB   int           `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db"`
	Prefix    string        `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
}

// TranscriptConfig configures speech-to-text and audio retrieval
type TranscriptConfig struct {
	Model               string   `mapstructure:"model" yaml:"model" json:"model"`
	APIKey              string   `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
	BaseURL             string   `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"`
	S3Region            string   `mapstructure:"s3_region" yaml:"s3_region,omitempty" json:"s3_region,omitempty"`
	S3Endpoint          string   `mapstructure:"s3_endpoint" yaml:"s3_endpoint,omitempty" json:"s3_endpoint,omitempty"` // S3-compatible stores (MinIO, Strato)
	S3AccessKey         string   `mapstructure:"s3_access_key" yaml:"s3_access_key,omitempty" json:"-"`
	S3SecretKey         string   `mapstructure:"s3_secret_key" yaml:"s3_secret_key,omitempty" json:"-"`
	AudioRoot           string   `mapstructure:"audio_root" yaml:"audio_root,omitempty" json:"audio_root,omitempty"` // base dir for relative audio paths
	AllowedContentTypes []string `mapstructure:"allowed_content_types" yaml:"allowed_content_types" json:"allowed_content_types"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" json:"addr" validate:"required"`
	ProbeSchedule   string        `mapstructure:"probe_schedule" yaml:"probe_schedule" json:"probe_schedule"` // cron spec, empty disables
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=json console"`
}

// HTTPConfig holds the shared outbound HTTP client settings
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes" validate:"min=0"`
	HTTPProxy    string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty" json:"http_proxy,omitempty"`
	HTTPSProxy   string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty" json:"https_proxy,omitempty"`
	NoProxy      string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty" json:"no_proxy,omitempty"`
	InsecureTLS  bool          `mapstructure:"insecure_tls" yaml:"insecure_tls" json:"insecure_tls"`
}

// RateLimitConfig holds outbound rate limits, applied per host and per provider
type RateLimitConfig struct {
	RequestsPerSecond float64            `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second" validate:"gt=0"`
	BurstSize         int                `mapstructure:"burst_size" yaml:"burst_size" json:"burst_size" validate:"min=1"`
	ProviderRates     map[string]float64 `mapstructure:"provider_rates" yaml:"provider_rates,omitempty" json:"provider_rates,omitempty" validate:"dive,gt=0"` // per provider name
}

// DefaultConfig returns a fully populated configuration
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ImportanceThreshold:  DefaultImportanceThreshold,
			FlagConfidenceCutoff: DefaultFlagCutoff,
			Workers:              4,
			QueueSize:            256,
			SourcesPerClaim:      10,
			SourceTypes:          []string{"news", "academic", "government"},
			MinRelevance:         30,
			JudgeConcurrency:     4,
			LiveGracePeriod:      10 * time.Second,
		},
		Gateway: GatewayConfig{
			ProviderTimeout: 3 * time.Second,
			MaxConcurrent:   16,
			FetchExcerpts:   false,
			ExcerptChars:    600,
		},
		Credibility: CredibilityConfig{
			DefaultScore: 60,
		},
		Providers: ProvidersConfig{
			NewsAPI: NewsAPIConfig{
				Enabled:  true,
				BaseURL:  "https://newsapi.org",
				Language: "en",
			},
			EuropePMC: EuropePMCConfig{
				Enabled: true,
				BaseURL: "https://www.ebi.ac.uk/europepmc/webservices/rest",
			},
			WebSearch: WebSearchConfig{
				Enabled:    false,
				BaseURL:    "http://localhost:8888",
				SourceType: "government",
				Scope:      "site:gov",
			},
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 400,
		},
		Store: StoreConfig{
			Driver:         "memory",
			MaxRetries:     3,
			RetryBaseDelay: 200 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     1 * time.Hour,
			Prefix:  "truthcast:",
		},
		Transcript: TranscriptConfig{
			Model: "whisper-1",
			AllowedContentTypes: []string{
				"audio/mpeg",
				"audio/wav",
				"audio/mp4",
				"audio/webm",
			},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ProbeSchedule:   "@every 5m",
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Timeout:      15 * time.Second,
			UserAgent:    "Truthcast/0.1 (+https://github.com/ppiankov/truthcast)",
			MaxBodyBytes: 2_000_000,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2.0,
			BurstSize:         5,
		},
	}
}

// Validate checks struct constraints on the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, t := range c.Pipeline.SourceTypes {
		if _, ok := ParseSourceType(t); !ok {
			return fmt.Errorf("invalid configuration: unknown source type %q", t)
		}
	}
	return nil
}

// ParsedSourceTypes returns the configured searchable source types
func (p PipelineConfig) ParsedSourceTypes() []SourceType {
	out := make([]SourceType, 0, len(p.SourceTypes))
	for _, s := range p.SourceTypes {
		if t, ok := ParseSourceType(s); ok {
			out = append(out, t)
		}
	}
	return out
}
