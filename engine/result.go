package engine

import (
	"time"

	"go.hackfix.me/tenmig/migration"
)

// Operation is a top-level engine operation.
type Operation string

// Operations.
const (
	OpStatus   Operation = "status"
	OpMigrate  Operation = "migrate"
	OpRollback Operation = "rollback"
)

// State is the state a target is left in by an operation.
type State string

// Target states.
const (
	StateUpToDate            State = "up-to-date"
	StatePendingForward      State = "pending-forward"
	StatePendingBackward     State = "pending-backward"
	StatePartiallyMigrated   State = "partially-migrated"
	StatePartiallyRolledBack State = "partially-rolled-back"
	StateConflict            State = "conflict"
	StateUnreachable         State = "unreachable"
)

// Failed returns true if the state is inconsistent or unknown.
func (s State) Failed() bool {
	switch s {
	case StatePartiallyMigrated, StatePartiallyRolledBack, StateConflict, StateUnreachable:
		return true
	}
	return false
}

// Step is one migration run, or planned to run, against a target.
type Step struct {
	Version   int
	Name      string
	Direction migration.Direction
	Duration  time.Duration
	Planned   bool
}

// Result is the outcome of an operation on a single target.
type Result struct {
	Target   string
	Kind     migration.Kind
	TenantID string
	State    State

	// FromVersion is the version before the operation, ToVersion the version
	// after it. PlannedVersion is the version the operation was meant to
	// reach; it differs from ToVersion for dry runs and failures.
	FromVersion    int
	ToVersion      int
	PlannedVersion int

	// Latest is the highest version available for the target, Pending the
	// number of migrations not yet applied to it.
	Latest        int
	Pending       int
	LastAppliedAt time.Time
	// Drift lists applied versions whose file changed after being applied.
	Drift []int

	Steps []Step
	Err   error
}

// Failed returns true if the operation didn't leave the target consistent.
func (r Result) Failed() bool {
	return r.Err != nil || r.State.Failed()
}

// Report is the aggregated outcome of an operation over all targets.
type Report struct {
	Operation Operation
	RunID     string
	DryRun    bool
	// Results holds one entry per target: the host first, then tenants in
	// registry order, then unreachable targets.
	Results []Result
}

// Failed returns the results of targets the operation failed for.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns a PartialFailureError if the operation failed for any target.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return PartialFailureError{Operation: r.Operation, Failed: len(failed), Total: len(r.Results)}
}
