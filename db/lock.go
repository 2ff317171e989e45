package db

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Lock obtains an exclusive advisory lock named key, guarding against
// concurrently launched processes migrating the same database. The returned
// function releases the lock and must always be called.
//
// On PostgreSQL this is a session-level pg_advisory_lock held on a dedicated
// connection. SQLite allows a single writer per database file, so no extra
// locking is done there.
func (d *DB) Lock(ctx context.Context, key string) (release func(), err error) {
	if d.dialect != DialectPostgres {
		return func() {}, nil
	}

	conn, err := d.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed reserving connection for advisory lock: %w", err)
	}

	lockID := lockKey(key)
	if _, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed acquiring advisory lock %d: %w", lockID, err)
	}

	return func() {
		// The session lock is released with the session as a fallback.
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}, nil
}

func lockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // Truncation is intended.
}
