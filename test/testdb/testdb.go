// Package testdb provides in-memory SQLite databases for tests.
package testdb

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/tenmig/db"
	"go.hackfix.me/tenmig/db/queries"
)

// DSN returns the data source name of a new, uniquely named in-memory SQLite
// database. The database lives as long as at least one connection to it is
// open.
func DSN(t testing.TB, prefix string) string {
	t.Helper()

	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	require.NoError(t, err)

	// Not using just :memory: to avoid 'no such table' issue.
	// See https://github.com/mattn/go-sqlite3#faq
	return fmt.Sprintf("file:%s-%x?mode=memory&cache=shared", prefix, rndName)
}

// Open creates a new in-memory database and keeps it alive until the test
// ends. It returns the handle and the DSN other handles can connect with.
func Open(t testing.TB, prefix string) (*db.DB, string) {
	t.Helper()

	dsn := DSN(t, prefix)
	d, err := db.Open(t.Context(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d, dsn
}

// RegisterTenants creates the tenant registry table in host, if needed, and
// inserts one active tenant row per entry.
func RegisterTenants(t testing.TB, host *db.DB, tenants ...queries.TenantDSN) {
	t.Helper()

	ctx := t.Context()
	_, err := host.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tenants (
		id           TEXT PRIMARY KEY,
		is_active    BOOLEAN NOT NULL DEFAULT 1,
		tenant_type  TEXT NOT NULL DEFAULT 'tenant',
		dbconnection TEXT NOT NULL
	)`)
	require.NoError(t, err)

	for _, tn := range tenants {
		_, err = host.ExecContext(ctx,
			`INSERT INTO tenants (id, dbconnection) VALUES (?, ?)`, tn.ID, tn.DSN)
		require.NoError(t, err)
	}
}

// Tables returns the names of all user tables in d, sorted by name.
func Tables(t testing.TB, d *db.DB) []string {
	t.Helper()

	rows, err := d.QueryContext(t.Context(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())

	return tables
}

// Columns returns the column names of table in d, in definition order.
func Columns(t testing.TB, d *db.DB, table string) []string {
	t.Helper()

	rows, err := d.QueryContext(t.Context(),
		`SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	require.NoError(t, err)
	defer rows.Close()

	cols := []string{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())

	return cols
}
