package engine

import (
	"fmt"

	"go.hackfix.me/tenmig/migration"
)

// ApplyError is returned when a migration fails to run against a target.
// Its transaction was rolled back, so nothing of it was recorded.
type ApplyError struct {
	Target    string
	Version   int
	Name      string
	Direction migration.Direction
	// Statement is the 1-based index of the failing statement, or 0 if the
	// failure happened outside of the migration's statements, e.g. while
	// starting the transaction or writing the ledger.
	Statement int
	SQL       string
	// Code is the driver error code, if any.
	Code string
	Err  error
}

// Error returns a string representation of the error.
func (e ApplyError) Error() string {
	loc := ""
	if e.Statement > 0 {
		loc = fmt.Sprintf(" at statement %d", e.Statement)
	}
	return fmt.Sprintf("failed applying %s of migration %03d_%s on %s%s: %s",
		e.Direction, e.Version, e.Name, e.Target, loc, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e ApplyError) Unwrap() error {
	return e.Err
}

// MissingDownSectionError is returned when rolling back a migration that has
// no DOWN section.
type MissingDownSectionError struct {
	Target  string
	Version int
	Name    string
	Path    string
}

// Error returns a string representation of the error.
func (e MissingDownSectionError) Error() string {
	return fmt.Sprintf("migration %03d_%s can't be rolled back on %s: %s has no DOWN section",
		e.Version, e.Name, e.Target, e.Path)
}

// PartialFailureError is returned when an operation failed for some targets.
// The per-target errors are part of the Report.
type PartialFailureError struct {
	Operation Operation
	Failed    int
	Total     int
}

// Error returns a string representation of the error.
func (e PartialFailureError) Error() string {
	return fmt.Sprintf("%s failed for %d of %d targets", e.Operation, e.Failed, e.Total)
}

// ExitCode returns the process exit code for partial failures.
func (e PartialFailureError) ExitCode() int {
	return 2
}
