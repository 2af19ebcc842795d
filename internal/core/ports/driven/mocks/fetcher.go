package mocks

import (
	"context"
	"sync"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// MockFetcher is a mock implementation of Fetcher for testing
type MockFetcher struct {
	mu    sync.Mutex
	calls []domain.Dataset

	// Docs maps dataset to the document Fetch returns
	Docs map[domain.Dataset]*domain.SourceDocument

	// FetchFn overrides the default behavior when set
	FetchFn func(spec domain.DatasetSpec, lastChecksum string) (*domain.SourceDocument, error)

	// Err is returned for every Fetch when set
	Err error
}

// NewMockFetcher creates a new MockFetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Docs: make(map[domain.Dataset]*domain.SourceDocument),
	}
}

func (m *MockFetcher) Fetch(ctx context.Context, spec domain.DatasetSpec, lastChecksum string) (*domain.SourceDocument, error) {
	m.mu.Lock()
	m.calls = append(m.calls, spec.Dataset)
	m.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(spec, lastChecksum)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	doc, ok := m.Docs[spec.Dataset]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc.Unchanged = lastChecksum != "" && doc.Checksum == lastChecksum
	return doc, nil
}

// Calls returns the datasets fetched, in order.
func (m *MockFetcher) Calls() []domain.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Dataset(nil), m.calls...)
}

// SetDocument registers content for a dataset with a computed checksum.
func (m *MockFetcher) SetDocument(dataset domain.Dataset, content []byte) {
	m.Docs[dataset] = &domain.SourceDocument{
		Dataset:  dataset,
		Content:  content,
		Checksum: domain.Checksum(content),
	}
}
