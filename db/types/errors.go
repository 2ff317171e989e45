package types

import (
	"errors"
	"fmt"

	"github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "modernc.org/sqlite/lib"
)

// LoadError represents an error that occurred while loading data from the database.
type LoadError struct {
	ModelName string
	Msg       string
	Err       error
}

// Error returns a string representation of the error.
func (e LoadError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("failed loading %s: %s", e.ModelName, msg)
}

// Unwrap returns the underlying error for error unwrapping.
func (e LoadError) Unwrap() error {
	return e.Err
}

// ScanError represents an error that occurred while scanning database results
// into Go types.
type ScanError struct {
	ModelName string
	Err       error
}

// Error returns a string representation of the error.
func (e ScanError) Error() string {
	return fmt.Sprintf("failed scanning %s data: %s", e.ModelName, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e ScanError) Unwrap() error {
	return e.Err
}

var sqliteCodeNames = map[int]string{
	sqlite3.SQLITE_ERROR:      "SQLITE_ERROR",
	sqlite3.SQLITE_BUSY:       "SQLITE_BUSY",
	sqlite3.SQLITE_LOCKED:     "SQLITE_LOCKED",
	sqlite3.SQLITE_READONLY:   "SQLITE_READONLY",
	sqlite3.SQLITE_CANTOPEN:   "SQLITE_CANTOPEN",
	sqlite3.SQLITE_CONSTRAINT: "SQLITE_CONSTRAINT",
	sqlite3.SQLITE_MISMATCH:   "SQLITE_MISMATCH",
}

// ErrCode extracts the driver-specific error code from err: the SQLSTATE for
// PostgreSQL errors, or the primary result code name for SQLite errors.
// It returns an empty string for errors that didn't originate in a driver.
func ErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		primary := sqlErr.Code() & 0xff
		if name, ok := sqliteCodeNames[primary]; ok {
			return name
		}
		return fmt.Sprintf("SQLITE_%d", primary)
	}

	return ""
}
