package ledger_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/tenmig/db"
	"go.hackfix.me/tenmig/db/ledger"
	"go.hackfix.me/tenmig/migration"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	require.NoError(t, err)

	// Not using just :memory: to avoid 'no such table' issue.
	// See https://github.com/mattn/go-sqlite3#faq
	d, err := db.Open(t.Context(), fmt.Sprintf("file:ledger-%x?mode=memory&cache=shared", rndName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func record(t *testing.T, d *db.DB, l *ledger.Ledger, entries ...ledger.Entry) {
	t.Helper()

	ctx := t.Context()
	tx, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, l.Ensure(ctx, tx))
	for _, e := range entries {
		require.NoError(t, l.Record(ctx, tx, e))
	}
	require.NoError(t, tx.Commit())
}

func entry(version int, dir migration.Direction, minute int) ledger.Entry {
	return ledger.Entry{
		Version:   version,
		Name:      fmt.Sprintf("m%d", version),
		Scope:     migration.ScopeHost,
		Direction: dir,
		AppliedAt: timeNow.Add(time.Duration(minute) * time.Minute),
		Checksum:  "abc",
		RunID:     "run1",
	}
}

func TestLedgerLazyCreation(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	d := newTestDB(t)
	l := ledger.New(d.Dialect(), "")

	ok, err := l.Exists(ctx, d)
	require.NoError(t, err)
	assert.False(t, ok)

	ver, err := l.CurrentVersion(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 0, ver)

	applied, err := l.Applied(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, applied)

	for _, err := range l.History(ctx, d, 0) {
		require.NoError(t, err)
		t.Fatal("expected no history")
	}

	// Reading never creates the table.
	ok, err = l.Exists(ctx, d)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Ensure(ctx, d))
	require.NoError(t, l.Ensure(ctx, d))
	ok, err = l.Exists(ctx, d)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerCurrentVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		entries    []ledger.Entry
		expVersion int
		expApplied []int
	}{
		{
			name:       "ok/empty",
			expVersion: 0,
			expApplied: []int{},
		},
		{
			name: "ok/all_up",
			entries: []ledger.Entry{
				entry(1, migration.DirectionUp, 1),
				entry(2, migration.DirectionUp, 2),
				entry(3, migration.DirectionUp, 3),
			},
			expVersion: 3,
			expApplied: []int{1, 2, 3},
		},
		{
			name: "ok/rolled_back",
			entries: []ledger.Entry{
				entry(1, migration.DirectionUp, 1),
				entry(2, migration.DirectionUp, 2),
				entry(3, migration.DirectionUp, 3),
				entry(3, migration.DirectionDown, 4),
				entry(2, migration.DirectionDown, 5),
			},
			expVersion: 1,
			expApplied: []int{1},
		},
		{
			name: "ok/reapplied",
			entries: []ledger.Entry{
				entry(1, migration.DirectionUp, 1),
				entry(2, migration.DirectionUp, 2),
				entry(2, migration.DirectionDown, 3),
				entry(2, migration.DirectionUp, 4),
			},
			expVersion: 2,
			expApplied: []int{1, 2},
		},
		{
			name: "ok/same_timestamp_ordered_by_id",
			entries: []ledger.Entry{
				entry(1, migration.DirectionUp, 0),
				entry(1, migration.DirectionDown, 0),
			},
			expVersion: 0,
			expApplied: []int{},
		},
		{
			name: "ok/all_rolled_back",
			entries: []ledger.Entry{
				entry(1, migration.DirectionUp, 1),
				entry(1, migration.DirectionDown, 2),
			},
			expVersion: 0,
			expApplied: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			d := newTestDB(t)
			l := ledger.New(d.Dialect(), "")
			record(t, d, l, tt.entries...)

			ver, err := l.CurrentVersion(ctx, d, migration.ScopeHost, migration.ScopeBoth)
			require.NoError(t, err)
			assert.Equal(t, tt.expVersion, ver)

			applied, err := l.Applied(ctx, d, migration.ScopeHost, migration.ScopeBoth)
			require.NoError(t, err)
			versions := make([]int, 0, len(applied))
			for v, e := range applied {
				assert.Equal(t, migration.DirectionUp, e.Direction)
				versions = append(versions, v)
			}
			slices.Sort(versions)
			assert.Equal(t, tt.expApplied, versions)
		})
	}
}

func TestLedgerScopes(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	d := newTestDB(t)
	l := ledger.New(d.Dialect(), "schema_log")

	both := entry(4, migration.DirectionUp, 2)
	both.Scope = migration.ScopeBoth
	record(t, d, l, entry(1, migration.DirectionUp, 1), both)

	ver, err := l.CurrentVersion(ctx, d, migration.ScopeHost)
	require.NoError(t, err)
	assert.Equal(t, 1, ver)

	ver, err = l.CurrentVersion(ctx, d, migration.ScopeHost, migration.ScopeBoth)
	require.NoError(t, err)
	assert.Equal(t, 4, ver)

	ver, err = l.CurrentVersion(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 4, ver)
}

func TestLedgerRecordRollsBackWithTransaction(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	d := newTestDB(t)
	l := ledger.New(d.Dialect(), "")
	require.NoError(t, l.Ensure(ctx, d))

	tx, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, tx, entry(1, migration.DirectionUp, 1)))
	require.NoError(t, tx.Rollback())

	ver, err := l.CurrentVersion(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 0, ver)
}

func TestLedgerHistory(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	d := newTestDB(t)
	l := ledger.New(d.Dialect(), "")

	e1 := entry(1, migration.DirectionUp, 1)
	e1.AppliedBy = "alice"
	e1.ExecutionTime = 1500 * time.Millisecond
	record(t, d, l,
		e1,
		entry(2, migration.DirectionUp, 2),
		entry(2, migration.DirectionDown, 3),
	)

	var got []string
	for e, err := range l.History(ctx, d, 0) {
		require.NoError(t, err)
		got = append(got, fmt.Sprintf("%d:%s", e.Version, e.Direction))
	}
	assert.Equal(t, []string{"2:down", "2:up", "1:up"}, got)

	var last ledger.Entry
	for e, err := range l.History(ctx, d, 0) {
		require.NoError(t, err)
		last = e
	}
	assert.Equal(t, "alice", last.AppliedBy)
	assert.Equal(t, 1500*time.Millisecond, last.ExecutionTime)
	assert.Equal(t, "m1", last.Name)
	assert.Equal(t, migration.ScopeHost, last.Scope)
	assert.True(t, e1.AppliedAt.Equal(last.AppliedAt))

	got = nil
	for e, err := range l.History(ctx, d, 2) {
		require.NoError(t, err)
		got = append(got, fmt.Sprintf("%d:%s", e.Version, e.Direction))
	}
	assert.Equal(t, []string{"2:down", "2:up"}, got)

	// Stopping early doesn't leak the cursor.
	for range l.History(ctx, d, 0) {
		break
	}
	require.NoError(t, l.Ensure(ctx, d))
}

func TestLedgerHistoryCancelled(t *testing.T) {
	t.Parallel()

	d := newTestDB(t)
	l := ledger.New(d.Dialect(), "")
	require.NoError(t, l.Ensure(t.Context(), d))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var gotErr error
	for _, err := range l.History(ctx, d, 0) {
		gotErr = err
	}
	assert.Error(t, gotErr)
}
