package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDatasetLock is an in-memory DatasetLock for testing
type MockDatasetLock struct {
	mu   sync.Mutex
	held map[string]bool

	// AcquireFn overrides Acquire behavior when set
	AcquireFn func(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// ReleaseFn overrides Release behavior when set
	ReleaseFn func(ctx context.Context, name string) error

	releases []string
}

// NewMockDatasetLock creates a new MockDatasetLock
func NewMockDatasetLock() *MockDatasetLock {
	return &MockDatasetLock{held: make(map[string]bool)}
}

func (m *MockDatasetLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, name, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] {
		return false, nil
	}
	m.held[name] = true
	return true, nil
}

func (m *MockDatasetLock) Release(ctx context.Context, name string) error {
	if m.ReleaseFn != nil {
		return m.ReleaseFn(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	m.releases = append(m.releases, name)
	return nil
}

func (m *MockDatasetLock) Ping(ctx context.Context) error {
	return nil
}

// Hold marks a lock as already taken by someone else.
func (m *MockDatasetLock) Hold(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = true
}

// Released returns the names passed to Release, in order.
func (m *MockDatasetLock) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.releases...)
}
