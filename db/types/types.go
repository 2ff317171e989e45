package types

import (
	"context"
	"database/sql"
)

// Querier exposes only methods for running SQL queries. It is satisfied by
// *sql.DB, *sql.Conn and *sql.Tx, so the same code runs inside and outside of
// transactions.
type Querier interface {
	ExecContext(ctx context.Context, sql string, arguments ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
