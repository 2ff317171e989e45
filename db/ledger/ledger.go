// Package ledger maintains the append-only record of migrations applied to and
// rolled back from a single database.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.hackfix.me/tenmig/db"
	"go.hackfix.me/tenmig/db/types"
	"go.hackfix.me/tenmig/migration"
)

// DefaultTable is the name of the ledger table created in every database.
const DefaultTable = "_migration_versions"

// Entry is one row of the ledger.
type Entry struct {
	ID            int64
	Version       int
	Name          string
	Scope         migration.Scope
	Direction     migration.Direction
	AppliedAt     time.Time
	AppliedBy     string
	ExecutionTime time.Duration
	Checksum      string
	RunID         string
}

// Ledger reads and appends ledger entries. It holds no connection itself:
// every method receives the Querier to run against, which allows writes to
// share the transaction of the schema change they record.
type Ledger struct {
	dialect db.Dialect
	table   string
}

// New returns a Ledger stored in table. An empty table name selects
// DefaultTable.
func New(dialect db.Dialect, table string) *Ledger {
	if table == "" {
		table = DefaultTable
	}
	return &Ledger{dialect: dialect, table: table}
}

// Ensure creates the ledger table and its index if they don't exist.
func (l *Ledger) Ensure(ctx context.Context, q types.Querier) error {
	tbl := l.dialect.QuoteIdentifier(l.table)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                %s,
			version           INTEGER NOT NULL,
			name              TEXT NOT NULL,
			scope             TEXT NOT NULL,
			direction         TEXT NOT NULL CHECK (direction IN ('up', 'down')),
			applied_at        %s NOT NULL,
			applied_by        TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			checksum          TEXT NOT NULL DEFAULT '',
			run_id            TEXT NOT NULL DEFAULT ''
		)`, tbl, l.dialect.SerialPrimaryKey(), l.dialect.TimestampType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (version, id)`,
			l.dialect.QuoteIdentifier("idx"+l.table+"_version"), tbl),
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed creating ledger table %s: %w", l.table, err)
		}
	}

	return nil
}

// Exists returns true if the ledger table has been created.
func (l *Ledger) Exists(ctx context.Context, q types.Querier) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, l.dialect.TableExistsQuery(), l.table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed checking for ledger table %s: %w", l.table, err)
	}
	return n > 0, nil
}

// CurrentVersion returns the highest currently applied version among
// migrations of the given scopes, or 0 if none is applied. A version is
// currently applied if its most recent entry is an 'up' entry. A missing
// ledger table means nothing was applied yet.
func (l *Ledger) CurrentVersion(ctx context.Context, q types.Querier, scopes ...migration.Scope) (int, error) {
	if ok, err := l.Exists(ctx, q); err != nil || !ok {
		return 0, err
	}

	tbl := l.dialect.QuoteIdentifier(l.table)
	where, args := scopeFilter("l.scope", scopes)
	query := fmt.Sprintf(`SELECT COALESCE(MAX(l.version), 0) FROM %[1]s l
		WHERE l.direction = 'up' AND %[2]s
		  AND l.id = (SELECT MAX(l2.id) FROM %[1]s l2 WHERE l2.version = l.version AND l2.scope = l.scope)`,
		tbl, where)

	var version int
	if err := q.QueryRowContext(ctx, l.dialect.Rebind(query), args...).Scan(&version); err != nil {
		return 0, types.LoadError{ModelName: "current version", Err: err}
	}

	return version, nil
}

// Applied returns the 'up' entry of every currently applied version among
// migrations of the given scopes, keyed by version.
func (l *Ledger) Applied(ctx context.Context, q types.Querier, scopes ...migration.Scope) (_ map[int]Entry, rerr error) {
	applied := map[int]Entry{}
	if ok, err := l.Exists(ctx, q); err != nil || !ok {
		return applied, err
	}

	tbl := l.dialect.QuoteIdentifier(l.table)
	where, args := scopeFilter("l.scope", scopes)
	query := fmt.Sprintf(`SELECT %[3]s FROM %[1]s l
		WHERE l.direction = 'up' AND %[2]s
		  AND l.id = (SELECT MAX(l2.id) FROM %[1]s l2 WHERE l2.version = l.version AND l2.scope = l.scope)
		ORDER BY l.version ASC`, tbl, where, columns)

	rows, err := q.QueryContext(ctx, l.dialect.Rebind(query), args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "applied migrations", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("failed closing ledger rows: %w", err)
		}
	}()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		applied[e.Version] = e
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over ledger rows: %w", err)
	}

	return applied, nil
}

// Record appends e to the ledger. It must be called with the transaction
// that carries the schema change e documents, so both commit or roll back
// together.
func (l *Ledger) Record(ctx context.Context, tx *sql.Tx, e Entry) error {
	stmt := fmt.Sprintf(`INSERT INTO %s
		(version, name, scope, direction, applied_at, applied_by, execution_time_ms, checksum, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, l.dialect.QuoteIdentifier(l.table))

	_, err := tx.ExecContext(ctx, l.dialect.Rebind(stmt),
		e.Version, e.Name, string(e.Scope), string(e.Direction), e.AppliedAt.UTC(),
		e.AppliedBy, e.ExecutionTime.Milliseconds(), e.Checksum, e.RunID)
	if err != nil {
		return fmt.Errorf("failed recording %s of version %d in ledger: %w", e.Direction, e.Version, err)
	}

	return nil
}

// History returns the ledger entries from most to least recent. Rows are
// read lazily as the sequence is consumed; stopping early releases them.
// A limit <= 0 returns all entries.
func (l *Ledger) History(ctx context.Context, q types.Querier, limit int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if ok, err := l.Exists(ctx, q); err != nil || !ok {
			if err != nil {
				yield(Entry{}, err)
			}
			return
		}

		query := fmt.Sprintf(`SELECT %s FROM %s l ORDER BY l.applied_at DESC, l.id DESC`,
			columns, l.dialect.QuoteIdentifier(l.table))
		var args []any
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}

		rows, err := q.QueryContext(ctx, l.dialect.Rebind(query), args...)
		if err != nil {
			yield(Entry{}, types.LoadError{ModelName: "ledger history", Err: err})
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if !yield(e, err) || err != nil {
				return
			}
		}
		if err = rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("failed iterating over ledger rows: %w", err))
		}
	}
}

const columns = `l.id, l.version, l.name, l.scope, l.direction, l.applied_at,
	l.applied_by, l.execution_time_ms, l.checksum, l.run_id`

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		scope, dir string
		execMs     int64
	)
	err := rows.Scan(&e.ID, &e.Version, &e.Name, &scope, &dir, &e.AppliedAt,
		&e.AppliedBy, &execMs, &e.Checksum, &e.RunID)
	if err != nil {
		return Entry{}, types.ScanError{ModelName: "ledger entry", Err: err}
	}
	e.Scope = migration.Scope(scope)
	e.Direction = migration.Direction(dir)
	e.ExecutionTime = time.Duration(execMs) * time.Millisecond

	return e, nil
}

func scopeFilter(col string, scopes []migration.Scope) (string, []any) {
	if len(scopes) == 0 {
		return "1=1", nil
	}
	args := make([]any, len(scopes))
	for i, s := range scopes {
		args[i] = string(s)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.TrimSuffix(strings.Repeat("?, ", len(scopes)), ", ")), args
}
