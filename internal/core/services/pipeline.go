package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
	"github.com/datacove/orangebook-etl/internal/core/ports/driving"
	"github.com/datacove/orangebook-etl/internal/parser"
)

// Verify interface compliance
var _ driving.PipelineService = (*Pipeline)(nil)

// Pipeline drives the per-dataset ETL state machine:
//
//	Idle → Fetching → Parsing → Reconciling → Loading → Completed | Failed
//
// Datasets run in dependency order: products complete before patents and
// exclusivity, which run concurrently. Each dataset holds its own lock for
// the whole run so concurrent processes cannot interleave baseline reads
// and writes.
type Pipeline struct {
	fetcher    driven.Fetcher
	loader     driven.Loader
	stateStore driven.LoadStateStore
	runStore   driven.LoadRunStore
	lock       driven.DatasetLock
	reconciler *Reconciler
	specs      map[domain.Dataset]domain.DatasetSpec
	retry      domain.RetryPolicy
	lockTTL    time.Duration
	workers    int
	logger     *slog.Logger
}

// PipelineConfig holds dependencies for Pipeline.
type PipelineConfig struct {
	Fetcher    driven.Fetcher
	Loader     driven.Loader
	StateStore driven.LoadStateStore
	RunStore   driven.LoadRunStore
	Lock       driven.DatasetLock
	Specs      []domain.DatasetSpec
	Logger     *slog.Logger

	// Retry bounds whole-pipeline attempts per dataset. Zero value
	// falls back to two attempts: the fetcher already retries its own
	// transport failures, so pipeline-level retries stay cheap.
	Retry domain.RetryPolicy

	// LockTTL is how long the dataset lock may outlive a crashed
	// holder (default 10m).
	LockTTL time.Duration

	// Workers bounds concurrent dataset runs after products (default 2).
	Workers int
}

// NewPipeline creates a pipeline orchestrator.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = domain.RetryPolicy{MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 10 * time.Minute
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	specs := make(map[domain.Dataset]domain.DatasetSpec, len(cfg.Specs))
	for _, s := range cfg.Specs {
		specs[s.Dataset] = s
	}

	return &Pipeline{
		fetcher:    cfg.Fetcher,
		loader:     cfg.Loader,
		stateStore: cfg.StateStore,
		runStore:   cfg.RunStore,
		lock:       cfg.Lock,
		reconciler: NewReconciler(logger),
		specs:      specs,
		retry:      retry,
		lockTTL:    lockTTL,
		workers:    workers,
		logger:     logger,
	}
}

// RunAll executes every configured dataset. Products run first; patents and
// exclusivity reference product application numbers, so they start only
// after products completes. A products failure does not stop them:
// referential gaps are tolerated and reportable, never fatal.
func (p *Pipeline) RunAll(ctx context.Context) []*domain.RunResult {
	results := make(map[domain.Dataset]*domain.RunResult, len(domain.AllDatasets))

	if _, ok := p.specs[domain.DatasetProducts]; ok {
		results[domain.DatasetProducts] = p.RunDataset(ctx, domain.DatasetProducts)
		if results[domain.DatasetProducts].Err != nil {
			p.logger.Warn("products run failed; dependent datasets continue and may reference stale products",
				"error", results[domain.DatasetProducts].Err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	dependent := []domain.Dataset{domain.DatasetPatents, domain.DatasetExclusivity}
	out := make([]*domain.RunResult, len(dependent))
	for i, d := range dependent {
		if _, ok := p.specs[d]; !ok {
			continue
		}
		i, d := i, d
		g.Go(func() error {
			out[i] = p.RunDataset(gctx, d)
			return nil
		})
	}
	_ = g.Wait()

	for i, d := range dependent {
		if out[i] != nil {
			results[d] = out[i]
		}
	}

	ordered := make([]*domain.RunResult, 0, len(results))
	for _, d := range domain.AllDatasets {
		if res, ok := results[d]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered
}

// RunDataset executes one dataset's pipeline under its lock, retrying the
// whole pipeline (not individual stages) on retryable errors. Non-retryable
// errors abort immediately without consuming the retry budget.
func (p *Pipeline) RunDataset(ctx context.Context, dataset domain.Dataset) *domain.RunResult {
	spec, ok := p.specs[dataset]
	if !ok {
		return p.failResult(ctx, dataset, time.Now(),
			fmt.Errorf("%w: dataset %s not configured", domain.ErrInvalidConfig, dataset))
	}
	if err := spec.Validate(); err != nil {
		return p.failResult(ctx, dataset, time.Now(), err)
	}

	startedAt := time.Now()

	acquired, err := p.lock.Acquire(ctx, string(dataset), p.lockTTL)
	if err != nil {
		return p.failResult(ctx, dataset, startedAt, fmt.Errorf("acquire dataset lock: %w", err))
	}
	if !acquired {
		return p.failResult(ctx, dataset, startedAt, domain.ErrRunInProgress)
	}
	defer func() {
		if err := p.lock.Release(context.WithoutCancel(ctx), string(dataset)); err != nil {
			p.logger.Warn("failed to release dataset lock", "dataset", dataset, "error", err)
		}
	}()

	var result *domain.RunResult
	err = p.retry.Do(ctx, func() error {
		var runErr error
		result, runErr = p.runOnce(ctx, spec, time.Now())
		return runErr
	})
	if err != nil {
		return p.failResult(ctx, dataset, startedAt, err)
	}
	return result
}

// runOnce is a single pass through the state machine. Cancellation is
// checked at stage boundaries; the loader's transaction is never
// interrupted mid-flight.
func (p *Pipeline) runOnce(ctx context.Context, spec domain.DatasetSpec, startedAt time.Time) (*domain.RunResult, error) {
	dataset := spec.Dataset

	// Fetching
	p.enterStage(dataset, domain.StageFetching)

	lastChecksum := ""
	if last, err := p.runStore.LastSuccessful(ctx, dataset); err == nil {
		lastChecksum = last.SourceChecksum
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("look up last successful run: %w", err)
	}

	doc, err := p.fetcher.Fetch(ctx, spec, lastChecksum)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", dataset, err)
	}

	if doc.Unchanged {
		// Content identical to the last successful load: no parse,
		// no loader transaction, and no LoadRun row. The previous
		// run's checksum stays the change-detection reference.
		p.logger.Info("source unchanged, skipping run",
			"dataset", dataset, "checksum", doc.Checksum)
		return &domain.RunResult{Dataset: dataset, Outcome: domain.OutcomeSuccess, Unchanged: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Parsing
	p.enterStage(dataset, domain.StageParsing)

	records, rejections, err := parser.Parse(spec, doc)
	if err != nil {
		return nil, err
	}
	if total := len(records) + len(rejections); total > 0 {
		rate := float64(len(rejections)) / float64(total)
		if rate > spec.MaxRejectRate {
			return nil, fmt.Errorf("%w: %d of %d rows rejected (%.1f%%)",
				domain.ErrRejectionRate, len(rejections), total, rate*100)
		}
	}
	for _, rej := range rejections {
		p.logger.Warn("row rejected",
			"dataset", dataset, "line", rej.Line, "reason", rej.Reason)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reconciling
	p.enterStage(dataset, domain.StageReconciling)

	baseline, err := p.stateStore.Baseline(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}

	// A batch under the configured minimum is treated as truncated:
	// it may insert and update, but baseline keys it lacks are not
	// deletions.
	batchComplete := len(records) >= spec.MinRows

	delta, err := p.reconciler.Reconcile(records, baseline, batchComplete, spec.MaxDeleteRate)
	if err != nil {
		return nil, err
	}

	p.logger.Info("rows classified",
		"dataset", dataset,
		"inserts", len(delta.Inserts),
		"updates", len(delta.Updates),
		"unchanged", delta.Unchanged,
		"deletions", len(delta.Deletions),
		"rejected", len(rejections),
		"batch_complete", batchComplete,
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Loading
	p.enterStage(dataset, domain.StageLoading)

	outcome := domain.OutcomeSuccess
	if len(rejections) > 0 {
		outcome = domain.OutcomePartial
	}

	run := &domain.LoadRun{
		ID:             uuid.NewString(),
		Dataset:        dataset,
		SourceChecksum: doc.Checksum,
		Counts: domain.RunCounts{
			Inserted:  len(delta.Inserts),
			Updated:   len(delta.Updates),
			Unchanged: delta.Unchanged,
			Deleted:   len(delta.Deletions),
			Rejected:  len(rejections),
		},
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Outcome:     outcome,
	}

	if err := p.loader.Load(ctx, run, delta); err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}

	p.enterStage(dataset, domain.StageCompleted)
	p.logger.Info("load run completed",
		"dataset", dataset,
		"run_id", run.ID,
		"outcome", string(outcome),
		"inserted", run.Counts.Inserted,
		"updated", run.Counts.Updated,
		"unchanged", run.Counts.Unchanged,
		"deleted", run.Counts.Deleted,
		"rejected", run.Counts.Rejected,
	)

	return &domain.RunResult{Dataset: dataset, Outcome: outcome, Counts: run.Counts}, nil
}

// failResult records a failed run in the audit trail (outside any load
// transaction, since nothing was committed) and returns the result.
func (p *Pipeline) failResult(ctx context.Context, dataset domain.Dataset, startedAt time.Time, err error) *domain.RunResult {
	p.enterStage(dataset, domain.StageFailed)
	p.logger.Error("dataset run failed", "dataset", dataset, "error", err)

	run := &domain.LoadRun{
		ID:          uuid.NewString(),
		Dataset:     dataset,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Outcome:     domain.OutcomeFailed,
		Error:       err.Error(),
	}
	if appendErr := p.runStore.Append(context.WithoutCancel(ctx), run); appendErr != nil {
		p.logger.Warn("failed to record failed run", "dataset", dataset, "error", appendErr)
	}

	return &domain.RunResult{Dataset: dataset, Outcome: domain.OutcomeFailed, Err: err}
}

func (p *Pipeline) enterStage(dataset domain.Dataset, stage domain.Stage) {
	p.logger.Info("stage entered", "dataset", dataset, "stage", string(stage))
}
