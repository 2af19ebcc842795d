package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// MockLoadStateStore is an in-memory LoadStateStore for testing
type MockLoadStateStore struct {
	mu     sync.RWMutex
	states map[domain.Dataset]domain.Baseline

	// Err fails every Baseline read when set
	Err error
}

// NewMockLoadStateStore creates a new MockLoadStateStore
func NewMockLoadStateStore() *MockLoadStateStore {
	return &MockLoadStateStore{
		states: make(map[domain.Dataset]domain.Baseline),
	}
}

func (m *MockLoadStateStore) Baseline(ctx context.Context, dataset domain.Dataset) (domain.Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	baseline := make(domain.Baseline, len(m.states[dataset]))
	for k, v := range m.states[dataset] {
		baseline[k] = v
	}
	return baseline, nil
}

func (m *MockLoadStateStore) set(dataset domain.Dataset, key, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[dataset] == nil {
		m.states[dataset] = make(domain.Baseline)
	}
	m.states[dataset][key] = domain.BaselineEntry{ContentHash: hash, LoadedAt: time.Now()}
}

func (m *MockLoadStateStore) remove(dataset domain.Dataset, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states[dataset], key)
}

// Count returns the number of baseline keys for a dataset.
func (m *MockLoadStateStore) Count(dataset domain.Dataset) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states[dataset])
}

// Snapshot returns a copy of the dataset's baseline for assertions.
func (m *MockLoadStateStore) Snapshot(dataset domain.Dataset) domain.Baseline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(domain.Baseline, len(m.states[dataset]))
	for k, v := range m.states[dataset] {
		out[k] = v
	}
	return out
}

// MockLoadRunStore is an in-memory LoadRunStore for testing
type MockLoadRunStore struct {
	mu   sync.RWMutex
	runs []*domain.LoadRun

	// Err fails every call when set
	Err error
}

// NewMockLoadRunStore creates a new MockLoadRunStore
func NewMockLoadRunStore() *MockLoadRunStore {
	return &MockLoadRunStore{}
}

func (m *MockLoadRunStore) Append(ctx context.Context, run *domain.LoadRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *MockLoadRunStore) LastSuccessful(ctx context.Context, dataset domain.Dataset) (*domain.LoadRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := len(m.runs) - 1; i >= 0; i-- {
		run := m.runs[i]
		if run.Dataset == dataset &&
			(run.Outcome == domain.OutcomeSuccess || run.Outcome == domain.OutcomePartial) {
			return run, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockLoadRunStore) List(ctx context.Context, dataset domain.Dataset, limit int) ([]*domain.LoadRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*domain.LoadRun
	for i := len(m.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.runs[i].Dataset == dataset {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

// All returns every appended run, in order.
func (m *MockLoadRunStore) All() []*domain.LoadRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.LoadRun(nil), m.runs...)
}
