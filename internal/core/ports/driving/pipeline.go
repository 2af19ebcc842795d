package driving

import (
	"context"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// PipelineService is the driving port for one scheduled ETL run.
type PipelineService interface {
	// RunDataset executes the fetch → parse → reconcile → load pipeline
	// for a single dataset, including per-dataset retries.
	RunDataset(ctx context.Context, dataset domain.Dataset) *domain.RunResult

	// RunAll executes every configured dataset in dependency order:
	// products first, then patents and exclusivity concurrently. One
	// dataset failing does not stop the others.
	RunAll(ctx context.Context) []*domain.RunResult
}
