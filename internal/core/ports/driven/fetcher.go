package driven

import (
	"context"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// Fetcher retrieves one dataset's upstream file.
type Fetcher interface {
	// Fetch performs the HTTP GET for the dataset, unwraps any archive
	// packaging, and computes the content checksum. When the checksum
	// equals lastChecksum the returned document is flagged Unchanged so
	// downstream stages can short-circuit. Transient failures are
	// retried internally with bounded backoff; exhausted retries and
	// non-retryable responses surface as errors. Fetch never mutates
	// load state.
	Fetch(ctx context.Context, spec domain.DatasetSpec, lastChecksum string) (*domain.SourceDocument, error)
}
