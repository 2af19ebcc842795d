package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested row or run was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates the configuration is malformed.
	// Never retried: the same config fails the same way.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRunInProgress indicates another run holds the dataset lock
	ErrRunInProgress = errors.New("dataset run already in progress")

	// ErrFetchRejected indicates the source refused the request with a
	// non-retryable status (403, 404, auth failures)
	ErrFetchRejected = errors.New("fetch rejected by source")

	// ErrSchemaDrift indicates the upstream header is missing required
	// columns; loading would silently misalign fields
	ErrSchemaDrift = errors.New("upstream schema drift")

	// ErrRejectionRate indicates too many rows failed parsing, which
	// signals a wholesale format change rather than stray corruption
	ErrRejectionRate = errors.New("parse rejection rate exceeded")

	// ErrDeletionSpike indicates the reconciler classified a suspicious
	// share of the baseline as deleted; applying it could destroy data
	ErrDeletionSpike = errors.New("deletion count exceeds safety threshold")
)

// TransientError marks an error as retryable: the same operation may
// succeed on a later attempt (network timeouts, 5xx responses, connection
// resets). Everything unmarked is treated as fatal to the run.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Wrapping nil returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
