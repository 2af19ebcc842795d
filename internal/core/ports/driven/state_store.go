package driven

import (
	"context"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// LoadStateStore reads the persisted key-to-hash baseline for a dataset.
// The baseline is only ever written inside the loader's transaction, so
// this port exposes reads alone.
type LoadStateStore interface {
	// Baseline returns the last-seen content hash per natural key.
	// A dataset that has never loaded returns an empty baseline.
	Baseline(ctx context.Context, dataset domain.Dataset) (domain.Baseline, error)
}

// LoadRunStore persists the append-only run audit trail.
type LoadRunStore interface {
	// Append records a completed run. Failed runs are appended here
	// directly; successful runs are appended by the loader inside its
	// transaction.
	Append(ctx context.Context, run *domain.LoadRun) error

	// LastSuccessful returns the most recent run for the dataset whose
	// outcome committed (success or partial). Returns domain.ErrNotFound
	// when the dataset has never loaded. Its checksum seeds the
	// fetcher's change detection.
	LastSuccessful(ctx context.Context, dataset domain.Dataset) (*domain.LoadRun, error)

	// List returns runs for a dataset, newest first, at most limit.
	List(ctx context.Context, dataset domain.Dataset, limit int) ([]*domain.LoadRun, error)
}
