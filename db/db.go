package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"
	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/jackc/pgx/v5/stdlib"

	"go.hackfix.me/tenmig/db/types"
)

// DB wraps sql.DB with the dialect of the connected database.
type DB struct {
	*sql.DB
	dialect  Dialect
	dsn      string
	maxIdle  int
	inMemory bool
}

var _ types.Querier = (*DB)(nil)

// Open connects to the database identified by dsn and verifies that it's
// reachable. The dialect, and with it the driver, is inferred from the DSN.
func Open(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	dialect, err := DialectFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	driverDSN := dsn
	if dialect == DialectSQLite {
		driverDSN = withForeignKeys(dsn)
	}

	sqlDB, err := sql.Open(dialect.DriverName(), driverDSN)
	if err != nil {
		return nil, fmt.Errorf("failed opening %s database: %w", dialect, err)
	}

	d := &DB{
		DB: sqlDB, dialect: dialect, dsn: dsn, maxIdle: o.maxIdleConns,
		inMemory: dialect == DialectSQLite &&
			(strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:")),
	}

	d.SetMaxOpenConns(o.maxOpenConns)
	if d.inMemory {
		// Keep at least one connection around, otherwise the in-memory
		// database is discarded. See https://github.com/mattn/go-sqlite3#faq
		d.maxIdle = o.maxOpenConns
		d.SetConnMaxLifetime(time.Duration(math.Inf(1)))
	} else {
		d.SetConnMaxLifetime(o.connMaxLifetime)
	}
	d.SetMaxIdleConns(d.maxIdle)

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err = d.PingContext(pingCtx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed connecting to %s database '%s': %w", dialect, d.Redacted(), err)
	}

	if dialect == DialectSQLite {
		// Also set with the DSN, so that it applies to every new connection.
		if _, err = d.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("failed enabling foreign key enforcement: %w", err)
		}
	}

	return d, nil
}

// Suspend closes the idle connections of d and stops keeping new ones, so
// that a handle waiting to be used holds no server connections. In-memory
// SQLite databases are left alone, since they're discarded once their last
// connection is closed.
func (d *DB) Suspend() {
	if !d.inMemory {
		d.SetMaxIdleConns(0)
	}
}

// Resume undoes Suspend.
func (d *DB) Resume() {
	d.SetMaxIdleConns(d.maxIdle)
}

// Dialect returns the SQL dialect of the database.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Redacted returns the DSN with any password removed, suitable for logging.
func (d *DB) Redacted() string {
	return redact(d.dsn)
}

// withForeignKeys adds the pragma enabling foreign key enforcement to a SQLite
// DSN, unless it sets it already.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if i := strings.Index(dsn, "password="); i >= 0 {
			end := strings.IndexByte(dsn[i:], ' ')
			if end < 0 {
				return dsn[:i] + "password=xxxxx"
			}
			return dsn[:i] + "password=xxxxx" + dsn[i+end:]
		}
		return dsn
	}

	return u.Redacted()
}
