package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/truthcast/internal/extract"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/session"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/ppiankov/truthcast/internal/worker"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatalf("setDefaults failed: %v", err)
	}
	bindEnv(v)
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	def := model.DefaultConfig()
	if cfg.Pipeline.ImportanceThreshold != def.Pipeline.ImportanceThreshold {
		t.Errorf("expected threshold %d, got %d", def.Pipeline.ImportanceThreshold, cfg.Pipeline.ImportanceThreshold)
	}
	if cfg.Pipeline.LiveGracePeriod != 10*time.Second {
		t.Errorf("expected 10s grace period, got %v", cfg.Pipeline.LiveGracePeriod)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected memory store, got %s", cfg.Store.Driver)
	}
	if len(cfg.Transcript.AllowedContentTypes) != 4 {
		t.Errorf("expected 4 allowed content types, got %v", cfg.Transcript.AllowedContentTypes)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TRUTHCAST_STORE_DRIVER", "sqlite")
	t.Setenv("TRUTHCAST_STORE_DSN", "/tmp/truthcast.db")
	t.Setenv("TRUTHCAST_PIPELINE_IMPORTANCE_THRESHOLD", "8")
	t.Setenv("TRUTHCAST_PIPELINE_LIVE_GRACE_PERIOD", "3s")
	t.Setenv("TRUTHCAST_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("NEWSAPI_KEY", "news-key")

	cfg, err := loadConfig(newTestViper(t))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/tmp/truthcast.db" {
		t.Errorf("expected sqlite store from env, got %s %q", cfg.Store.Driver, cfg.Store.DSN)
	}
	if cfg.Pipeline.ImportanceThreshold != 8 {
		t.Errorf("expected threshold 8, got %d", cfg.Pipeline.ImportanceThreshold)
	}
	if cfg.Pipeline.LiveGracePeriod != 3*time.Second {
		t.Errorf("expected 3s grace period, got %v", cfg.Pipeline.LiveGracePeriod)
	}
	if cfg.LLM.APIKey != "sk-ant-test" {
		t.Errorf("expected anthropic key fallback, got %q", cfg.LLM.APIKey)
	}
	if cfg.Providers.NewsAPI.APIKey != "news-key" {
		t.Errorf("expected newsapi key fallback, got %q", cfg.Providers.NewsAPI.APIKey)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("TRUTHCAST_STORE_DRIVER", "postgres")

	if _, err := loadConfig(newTestViper(t)); err == nil {
		t.Error("expected error for postgres without DSN")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Truthcast Configuration File") {
		t.Error("expected header comment")
	}

	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr, got %q", cfg.Server.Addr)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestRedact(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Store.DSN = "postgres://user:pw@db/truthcast"

	out := redact(cfg)
	if out.LLM.APIKey != "********" || out.Store.DSN != "********" {
		t.Errorf("expected secrets masked, got %q %q", out.LLM.APIKey, out.Store.DSN)
	}
	if out.Transcript.APIKey != "" {
		t.Errorf("expected empty secrets to stay empty, got %q", out.Transcript.APIKey)
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Error("redact modified the original config")
	}
}

func TestWorkIDFor(t *testing.T) {
	a := workIDFor("episodes/one.json")
	if a != workIDFor("episodes/one.json") {
		t.Error("expected stable id for the same path")
	}
	if a == workIDFor("episodes/two.json") {
		t.Error("expected different ids for different paths")
	}
}

// staticSearcher returns one government source for any query
type staticSearcher struct{}

func (staticSearcher) Search(ctx context.Context, query string, types []model.SourceType, limit int) ([]model.Source, error) {
	return []model.Source{{ID: "src_a", URL: "https://bls.gov/a", Domain: "bls.gov", Type: model.SourceTypeGovernment, CredibilityScore: 95}}, nil
}

// countingSynth returns an uncertain verdict and counts calls
type countingSynth struct {
	calls atomic.Int32
}

func (s *countingSynth) Synthesize(ctx context.Context, claim model.ClaimCandidate, sources []model.Source) model.Verdict {
	s.calls.Add(1)
	v := model.UncertainVerdict(claim, "test")
	v.ID = "vrd-" + claim.ID
	return v
}

func TestFileVerifier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "episode.json")
	units := []model.TranscriptUnit{
		{Text: "Thanks for tuning in.", StartOffsetMs: 0, EndOffsetMs: 1500, SourceConfidence: 0.9},
		{Text: "In 2023 the unemployment rate fell to 3.4 percent, according to the Bureau of Labor Statistics.", StartOffsetMs: 1500, EndOffsetMs: 7000, SourceConfidence: 0.9},
	}
	data, _ := json.Marshal(units)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	st := store.NewMemory()
	synth := &countingSynth{}
	cfg := model.DefaultConfig()
	deps := &session.Deps{
		Store:       st,
		Extractor:   extract.NewHeuristicExtractor(),
		Searcher:    staticSearcher{},
		Synthesizer: synth,
		Config:      cfg.Pipeline,
	}
	processor := worker.NewBatchProcessor(&fileVerifier{deps: deps, owner: "tester"}, 1)

	results := processor.ProcessFiles(context.Background(), []string{path, filepath.Join(dir, "missing.json")})
	if results[0].Error != nil {
		t.Fatalf("verify failed: %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("expected error for missing transcript")
	}

	work := results[0].Work
	if work.Status != model.StatusCompleted {
		t.Fatalf("expected completed work, got %s", work.Status)
	}
	if work.OwnerID != "tester" || work.Podcast.Title != "episode.json" {
		t.Errorf("unexpected work metadata: %+v", work.Podcast)
	}
	if work.Stats.TotalClaims == 0 {
		t.Fatal("expected at least one verified claim")
	}
	checked := synth.calls.Load()

	// A completed file is not verified again
	again := processor.ProcessFiles(context.Background(), []string{path})
	if again[0].Error != nil || again[0].Work.ID != work.ID {
		t.Fatalf("expected stored work on re-run, got %v", again[0].Error)
	}
	if n := synth.calls.Load(); n != checked {
		t.Errorf("expected no new checks on re-run, got %d", n-checked)
	}

	outputDir = dir
	out, err := writeReport(context.Background(), st, results[0])
	if err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}
	if filepath.Base(out) != "episode.verdicts.json" {
		t.Errorf("unexpected report name %s", out)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var rep report
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("report does not parse: %v", err)
	}
	if len(rep.Verdicts) != work.Stats.TotalClaims {
		t.Errorf("expected %d verdicts in report, got %d", work.Stats.TotalClaims, len(rep.Verdicts))
	}
}
