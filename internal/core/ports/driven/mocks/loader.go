package mocks

import (
	"context"
	"sync"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// LoadCall captures one Load invocation.
type LoadCall struct {
	Run   *domain.LoadRun
	Delta *domain.Delta
}

// MockLoader is a mock implementation of Loader for testing. On success it
// applies the delta to the paired MockLoadStateStore and appends the run to
// the paired MockLoadRunStore, mimicking the loader's transactional
// behavior; on error it applies nothing, mimicking rollback.
type MockLoader struct {
	mu    sync.Mutex
	calls []LoadCall

	// Err fails every Load when set; state and runs stay untouched
	Err error

	States *MockLoadStateStore
	Runs   *MockLoadRunStore
}

// NewMockLoader creates a loader wired to the given stores (either may be nil).
func NewMockLoader(states *MockLoadStateStore, runs *MockLoadRunStore) *MockLoader {
	return &MockLoader{States: states, Runs: runs}
}

func (m *MockLoader) Load(ctx context.Context, run *domain.LoadRun, delta *domain.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.calls = append(m.calls, LoadCall{Run: run, Delta: delta})

	if m.States != nil {
		for _, rec := range delta.Inserts {
			m.States.set(run.Dataset, rec.NaturalKey(), rec.ContentHash())
		}
		for _, rec := range delta.Updates {
			m.States.set(run.Dataset, rec.NaturalKey(), rec.ContentHash())
		}
		for _, key := range delta.Deletions {
			m.States.remove(run.Dataset, key)
		}
	}
	if m.Runs != nil {
		_ = m.Runs.Append(ctx, run)
	}
	return nil
}

// Calls returns every successful Load invocation.
func (m *MockLoader) Calls() []LoadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoadCall(nil), m.calls...)
}
