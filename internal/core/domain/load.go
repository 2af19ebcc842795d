package domain

import "time"

// Stage is one step of the per-dataset pipeline state machine.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageFetching    Stage = "fetching"
	StageParsing     Stage = "parsing"
	StageReconciling Stage = "reconciling"
	StageLoading     Stage = "loading"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Outcome is the recorded result of one dataset run.
type Outcome string

const (
	// OutcomeSuccess means every parsed row landed.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the load committed but some rows were
	// rejected (under the configured threshold).
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means nothing was committed for this run.
	OutcomeFailed Outcome = "failed"
)

// BaselineEntry is the last-seen state for one natural key.
type BaselineEntry struct {
	ContentHash string
	LoadedAt    time.Time
}

// Baseline is the comparison state read once at the start of a run:
// natural key to last-seen content hash.
type Baseline map[string]BaselineEntry

// Delta is the reconciler's classification of an incoming batch against the
// baseline. Unchanged records are counted but never written.
type Delta struct {
	Inserts   []Record
	Updates   []Record
	Deletions []string // natural keys present in the baseline, absent upstream
	Unchanged int
}

// Empty reports whether the delta requires no destination writes.
func (d *Delta) Empty() bool {
	return len(d.Inserts) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// RunCounts are the per-classification row counts of a run.
type RunCounts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Rejected  int `json:"rejected"`
}

// LoadRun is the append-only audit record of one dataset run. It is never
// mutated after being written; the latest successful run's checksum is the
// fetcher's change-detection reference.
type LoadRun struct {
	ID             string
	Dataset        Dataset
	SourceChecksum string
	Counts         RunCounts
	StartedAt      time.Time
	CompletedAt    time.Time
	Outcome        Outcome
	Error          string
}

// RunResult is the orchestrator's per-dataset result, aggregated into the
// process exit status.
type RunResult struct {
	Dataset   Dataset
	Outcome   Outcome
	Unchanged bool // fetch short-circuited; no load transaction ran
	Counts    RunCounts
	Err       error
}
