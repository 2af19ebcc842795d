package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LoadRunStore = (*LoadRunStore)(nil)

// LoadRunStore implements driven.LoadRunStore using PostgreSQL.
// Runs are append-only; there is no update path.
type LoadRunStore struct {
	db *DB
}

// NewLoadRunStore creates a new LoadRunStore
func NewLoadRunStore(db *DB) *LoadRunStore {
	return &LoadRunStore{db: db}
}

const insertRunSQL = `
	INSERT INTO load_runs (id, dataset, source_checksum, inserted, updated, unchanged, deleted, rejected, started_at, completed_at, outcome, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// Append records a completed run.
func (s *LoadRunStore) Append(ctx context.Context, run *domain.LoadRun) error {
	_, err := s.db.ExecContext(ctx, insertRunSQL, runArgs(run)...)
	return err
}

// appendTx records a run inside an existing transaction; the loader uses it
// so the audit row commits atomically with the rows it describes.
func appendRunTx(ctx context.Context, tx *sql.Tx, run *domain.LoadRun) error {
	_, err := tx.ExecContext(ctx, insertRunSQL, runArgs(run)...)
	return err
}

func runArgs(run *domain.LoadRun) []any {
	return []any{
		run.ID,
		string(run.Dataset),
		run.SourceChecksum,
		run.Counts.Inserted,
		run.Counts.Updated,
		run.Counts.Unchanged,
		run.Counts.Deleted,
		run.Counts.Rejected,
		run.StartedAt,
		run.CompletedAt,
		string(run.Outcome),
		run.Error,
	}
}

const selectRunSQL = `
	SELECT id, dataset, source_checksum, inserted, updated, unchanged, deleted, rejected, started_at, completed_at, outcome, error
	FROM load_runs
`

// LastSuccessful returns the most recent committed run for a dataset.
// Partial runs committed too, so their checksum is just as valid a
// change-detection reference as a full success.
func (s *LoadRunStore) LastSuccessful(ctx context.Context, dataset domain.Dataset) (*domain.LoadRun, error) {
	query := selectRunSQL + `
		WHERE dataset = $1 AND outcome IN ($2, $3)
		ORDER BY completed_at DESC
		LIMIT 1
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query,
		string(dataset), string(domain.OutcomeSuccess), string(domain.OutcomePartial)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs for a dataset, newest first.
func (s *LoadRunStore) List(ctx context.Context, dataset domain.Dataset, limit int) ([]*domain.LoadRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectRunSQL + `
		WHERE dataset = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, string(dataset), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.LoadRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.LoadRun, error) {
	var run domain.LoadRun
	err := row.Scan(
		&run.ID,
		&run.Dataset,
		&run.SourceChecksum,
		&run.Counts.Inserted,
		&run.Counts.Updated,
		&run.Counts.Unchanged,
		&run.Counts.Deleted,
		&run.Counts.Rejected,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Outcome,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
