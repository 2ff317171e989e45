package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavor spoken by a database connection.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DialectFromDSN infers the dialect from a data source name.
// PostgreSQL URLs and keyword/value strings map to DialectPostgres, file paths
// and SQLite URIs map to DialectSQLite.
func DialectFromDSN(dsn string) (Dialect, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", fmt.Errorf("empty data source name")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return DialectPostgres, nil
	case strings.HasPrefix(dsn, "file:"), strings.HasPrefix(dsn, "sqlite://"),
		dsn == ":memory:", strings.HasSuffix(dsn, ".db"),
		strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".sqlite3"):
		return DialectSQLite, nil
	}

	return "", fmt.Errorf("unable to infer SQL dialect from data source name '%s'", redact(dsn))
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	default:
		return "sqlite"
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form. Question
// marks inside quoted strings or identifiers are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var (
		sb    strings.Builder
		n     int
		quote rune
	)
	sb.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

// TableExistsQuery returns a query that counts tables with the name given as
// its single argument.
func (d Dialect) TableExistsQuery() string {
	if d == DialectPostgres {
		return `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// SerialPrimaryKey returns the column definition of an auto-incrementing
// integer primary key.
func (d Dialect) SerialPrimaryKey() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TimestampType returns the column type used for timestamps.
func (d Dialect) TimestampType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// QuoteIdentifier quotes a table or column name.
func (d Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
