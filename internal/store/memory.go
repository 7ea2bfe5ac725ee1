package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

// Memory is an in-process Store used by default and in tests
type Memory struct {
	mu       sync.RWMutex
	works    map[string]*model.ParentWork
	verdicts map[string]map[string]model.Verdict // work id -> claim hash -> verdict
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		works:    make(map[string]*model.ParentWork),
		verdicts: make(map[string]map[string]model.Verdict),
	}
}

func (m *Memory) CreateParentWork(_ context.Context, w *model.ParentWork) error {
	if err := w.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.works[w.ID]; ok {
		return fmt.Errorf("parent work %s: %w", w.ID, ErrAlreadyExists)
	}
	m.works[w.ID] = w.Clone()
	return nil
}

func (m *Memory) LoadParentWork(_ context.Context, id string) (*model.ParentWork, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.works[id]
	if !ok {
		return nil, fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	return w.Clone(), nil
}

func (m *Memory) SaveParentWork(_ context.Context, w *model.ParentWork) error {
	if err := w.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.works[w.ID]; !ok {
		return fmt.Errorf("parent work %s: %w", w.ID, ErrNotFound)
	}
	stored := w.Clone()
	stored.UpdatedAt = time.Now().UTC()
	m.works[w.ID] = stored
	return nil
}

func (m *Memory) SaveParentWorkStatus(_ context.Context, id string, status model.Status, progressPct int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.works[id]
	if !ok {
		return fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	w.Status = status
	w.ProgressPct = model.Clamp(progressPct, 0, 100)
	w.Error = errMsg
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SaveParentWorkStats(_ context.Context, id string, stats model.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.works[id]
	if !ok {
		return fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	w.Stats = stats.Clone()
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SaveVerdict(_ context.Context, v model.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byHash, ok := m.verdicts[v.ParentWorkID]
	if !ok {
		byHash = make(map[string]model.Verdict)
		m.verdicts[v.ParentWorkID] = byHash
	}
	if existing, ok := byHash[v.ClaimHash]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	}
	byHash[v.ClaimHash] = v
	return nil
}

func (m *Memory) ListVerdicts(_ context.Context, parentWorkID string) ([]model.Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Verdict, 0, len(m.verdicts[parentWorkID]))
	for _, v := range m.verdicts[parentWorkID] {
		out = append(out, v)
	}
	sortVerdicts(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

// sortVerdicts orders verdicts by transcript position
func sortVerdicts(vs []model.Verdict) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].OriginOffsetMs != vs[j].OriginOffsetMs {
			return vs[i].OriginOffsetMs < vs[j].OriginOffsetMs
		}
		return vs[i].CreatedAt.Before(vs[j].CreatedAt)
	})
}
