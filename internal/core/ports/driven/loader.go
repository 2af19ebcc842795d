package driven

import (
	"context"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// Loader applies a classified delta to the destination tables.
type Loader interface {
	// Load applies inserts and updates as natural-key upserts, marks
	// deletions softly (audit rows are never hard-removed), rewrites
	// the LoadState baseline for affected keys, and appends the run
	// record, all inside one transaction. On error everything rolls
	// back and the baseline keeps its prior value, so a retried run
	// reprocesses the same delta.
	Load(ctx context.Context, run *domain.LoadRun, delta *domain.Delta) error
}
