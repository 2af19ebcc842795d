package postgres

import (
	"context"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LoadStateStore = (*LoadStateStore)(nil)

// LoadStateStore implements driven.LoadStateStore using PostgreSQL.
// It only reads: baseline writes happen inside the loader's transaction.
type LoadStateStore struct {
	db *DB
}

// NewLoadStateStore creates a new LoadStateStore
func NewLoadStateStore(db *DB) *LoadStateStore {
	return &LoadStateStore{db: db}
}

// Baseline returns the last-seen content hash per natural key for a dataset.
func (s *LoadStateStore) Baseline(ctx context.Context, dataset domain.Dataset) (domain.Baseline, error) {
	query := `
		SELECT natural_key, content_hash, loaded_at
		FROM load_state
		WHERE dataset = $1
	`

	rows, err := s.db.QueryContext(ctx, query, string(dataset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	baseline := make(domain.Baseline)
	for rows.Next() {
		var key string
		var entry domain.BaselineEntry
		if err := rows.Scan(&key, &entry.ContentHash, &entry.LoadedAt); err != nil {
			return nil, err
		}
		baseline[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return baseline, nil
}
