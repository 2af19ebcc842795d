package driven

import (
	"context"
	"time"
)

// DatasetLock serializes runs against the same dataset across process
// instances. Concurrent runs must not interleave their LoadState reads and
// writes, so the orchestrator holds the lock for the whole pipeline.
type DatasetLock interface {
	// Acquire attempts to take the named lock with the given TTL.
	// Returns false without error when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release gives the lock back. Best-effort: TTL-based backends
	// expire it anyway, and releasing an unheld lock is not an error.
	Release(ctx context.Context, name string) error

	// Ping checks that the lock backend is healthy.
	Ping(ctx context.Context) error
}
