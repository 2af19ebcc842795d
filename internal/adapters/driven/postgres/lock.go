package postgres

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DatasetLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DatasetLock using PostgreSQL advisory locks.
//
// Advisory locks are connection-scoped, not TTL-based: the TTL parameter is
// ignored, and a lost connection releases the lock automatically, so a
// crashed run frees its dataset. Use the Redis lock when the destination
// database should not double as the coordination backend.
type AdvisoryLock struct {
	db *DB
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// hashLockName converts a dataset name to a 64-bit integer for PostgreSQL
// advisory locks. Uses FNV-1a for consistent, well-distributed values.
func hashLockName(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("orangebook:lock:" + name))
	return int64(h.Sum64())
}

// Acquire attempts to take the dataset lock without blocking.
// The TTL parameter is ignored; the lock is held until released or the
// connection closes.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	lockID := hashLockName(name)

	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release releases the dataset lock.
// Safe to call even if the lock is not held (returns false but no error).
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	lockID := hashLockName(name)

	var released bool
	return l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", lockID).Scan(&released)
}

// Ping checks if the PostgreSQL backend is healthy.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
