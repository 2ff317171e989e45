package migration

import (
	"fmt"
	"strings"
)

// ParseError is returned when a migration file is malformed.
type ParseError struct {
	Path string
	Line int // 0 if the error isn't tied to a line
	Msg  string
	Err  error
}

// Error returns a string representation of the error.
func (e ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("failed parsing migration ")
	sb.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&sb, ":%d", e.Line)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error unwrapping.
func (e ParseError) Unwrap() error {
	return e.Err
}

// ConflictError is returned when the set of migrations is inconsistent: two
// migrations share a version, or the versions of a database don't line up
// with the migration files.
type ConflictError struct {
	Scope   Scope
	Version int
	Paths   []string
	Msg     string
}

// Error returns a string representation of the error.
func (e ConflictError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("migration conflict at version %d: %s", e.Version, e.Msg)
	}
	return fmt.Sprintf("duplicate %s migration version %d: %s",
		e.Scope, e.Version, strings.Join(e.Paths, ", "))
}
