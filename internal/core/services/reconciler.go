package services

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// Reconciler classifies an incoming batch against the last-loaded baseline.
// It is pure computation over already-fetched data; all I/O happens before
// and after it.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// Reconcile compares each record's natural key and content hash against the
// baseline: absent key is an insert, differing hash an update, matching hash
// unchanged. Baseline keys missing from the batch become deletions only when
// batchComplete: a truncated fetch must never read as a real-world deletion.
// A deletion share above maxDeleteRate of the baseline fails the run instead
// of being applied.
func (r *Reconciler) Reconcile(
	records []domain.Record,
	baseline domain.Baseline,
	batchComplete bool,
	maxDeleteRate float64,
) (*domain.Delta, error) {
	delta := &domain.Delta{}
	incoming := make(map[string]struct{}, len(records))

	// Position of each key already placed in the delta, so a duplicate
	// key can supersede its earlier occurrence in place. The parser
	// already rejects in-batch duplicates; this path handles batches
	// that arrive from elsewhere.
	inserted := make(map[string]int)
	updated := make(map[string]int)

	for _, rec := range records {
		key := rec.NaturalKey()

		if _, dup := incoming[key]; dup {
			r.logger.Warn("superseding earlier record with duplicate key",
				"dataset", rec.Dataset(),
				"natural_key", key,
			)
			if i, ok := inserted[key]; ok {
				delta.Inserts = append(delta.Inserts[:i], delta.Inserts[i+1:]...)
				delete(inserted, key)
				reindex(inserted, i)
			} else if i, ok := updated[key]; ok {
				delta.Updates = append(delta.Updates[:i], delta.Updates[i+1:]...)
				delete(updated, key)
				reindex(updated, i)
			} else {
				delta.Unchanged--
			}
		}
		incoming[key] = struct{}{}

		entry, known := baseline[key]
		switch {
		case !known:
			inserted[key] = len(delta.Inserts)
			delta.Inserts = append(delta.Inserts, rec)
		case entry.ContentHash != rec.ContentHash():
			updated[key] = len(delta.Updates)
			delta.Updates = append(delta.Updates, rec)
		default:
			delta.Unchanged++
		}
	}

	if batchComplete {
		for key := range baseline {
			if _, present := incoming[key]; !present {
				delta.Deletions = append(delta.Deletions, key)
			}
		}
		sort.Strings(delta.Deletions)
		if len(baseline) > 0 {
			rate := float64(len(delta.Deletions)) / float64(len(baseline))
			if rate > maxDeleteRate {
				return nil, fmt.Errorf("%w: %d of %d baseline keys missing (%.1f%%)",
					domain.ErrDeletionSpike, len(delta.Deletions), len(baseline), rate*100)
			}
		}
	}

	return delta, nil
}

// reindex shifts positions after an element was removed at i.
func reindex(positions map[string]int, i int) {
	for k, v := range positions {
		if v > i {
			positions[k] = v - 1
		}
	}
}
