package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/store"
)

// fakeExtractor emits one candidate per unit whose text has a configured importance
type fakeExtractor struct {
	importance map[string]int
	fail       map[string]bool
	panicOn    string
}

func (f *fakeExtractor) Extract(text string) ([]model.ClaimCandidate, error) {
	if text == f.panicOn {
		panic("boom")
	}
	if f.fail[text] {
		return nil, errors.New("cannot parse")
	}
	imp, ok := f.importance[text]
	if !ok {
		return nil, nil
	}
	return []model.ClaimCandidate{{ID: model.ClaimID(text), Text: text, Importance: imp}}, nil
}

// fakeSearcher returns the same sources for every claim
type fakeSearcher struct {
	sources []model.Source
	err     error
	calls   atomic.Int32
}

func (f *fakeSearcher) Search(ctx context.Context, query string, types []model.SourceType, limit int) ([]model.Source, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.sources, nil
}

// fakeSynth labels claims from a table; block makes it wait for release
type fakeSynth struct {
	labels  map[string]model.Label
	block   chan struct{} // when set, Synthesize waits for close regardless of ctx
	started chan string
	calls   atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, claim model.ClaimCandidate, sources []model.Source) model.Verdict {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- claim.Text
	}
	if f.block != nil {
		<-f.block
	}

	label, ok := f.labels[claim.Text]
	if !ok {
		label = model.LabelVerified
	}
	v := model.Verdict{
		ID:             "vrd-" + claim.ID,
		ClaimID:        claim.ID,
		ClaimText:      claim.Text,
		ClaimHash:      claim.Hash(),
		OriginOffsetMs: claim.OriginOffsetMs,
		Label:          label,
		Confidence:     85,
		Explanation:    "fake",
		Perspectives:   []model.Perspective{},
		Sources:        sources,
		CreatedAt:      time.Now().UTC(),
	}
	v.Normalize(model.DefaultFlagCutoff)
	return v
}

// recordingStore captures status transitions and can fail verdict writes
type recordingStore struct {
	*store.Memory
	mu          sync.Mutex
	statuses    []model.Status
	failVerdict error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: store.NewMemory()}
}

func (r *recordingStore) SaveParentWorkStatus(ctx context.Context, id string, status model.Status, pct int, errMsg string) error {
	r.mu.Lock()
	if n := len(r.statuses); n == 0 || r.statuses[n-1] != status {
		r.statuses = append(r.statuses, status)
	}
	r.mu.Unlock()
	return r.Memory.SaveParentWorkStatus(ctx, id, status, pct, errMsg)
}

func (r *recordingStore) SaveParentWork(ctx context.Context, w *model.ParentWork) error {
	r.mu.Lock()
	if n := len(r.statuses); n == 0 || r.statuses[n-1] != w.Status {
		r.statuses = append(r.statuses, w.Status)
	}
	r.mu.Unlock()
	return r.Memory.SaveParentWork(ctx, w)
}

func (r *recordingStore) SaveVerdict(ctx context.Context, v model.Verdict) error {
	if r.failVerdict != nil {
		return r.failVerdict
	}
	return r.Memory.SaveVerdict(ctx, v)
}

func (r *recordingStore) Statuses() []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Status(nil), r.statuses...)
}

func testSources() []model.Source {
	return []model.Source{
		{ID: "src_a", Title: "Agency report", URL: "https://stats.example.gov/a", Domain: "stats.example.gov", Type: model.SourceTypeGovernment, CredibilityScore: 95, RelevanceScore: 90},
		{ID: "src_b", Title: "Wire story", URL: "https://reuters.com/b", Domain: "reuters.com", Type: model.SourceTypeNews, CredibilityScore: 92, RelevanceScore: 85},
	}
}

func testPipelineConfig() model.PipelineConfig {
	cfg := model.DefaultConfig().Pipeline
	cfg.LiveGracePeriod = 100 * time.Millisecond
	return cfg
}

func testDeps(st store.Store, ex *fakeExtractor, synth VerdictSynthesizer) *Deps {
	return &Deps{
		Store:       st,
		Extractor:   ex,
		Searcher:    &fakeSearcher{sources: testSources()},
		Synthesizer: synth,
		Config:      testPipelineConfig(),
	}
}
