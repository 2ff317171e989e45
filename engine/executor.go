package engine

import (
	"context"
	"log/slog"
	"time"

	"go.hackfix.me/tenmig/db/ledger"
	"go.hackfix.me/tenmig/db/types"
	"go.hackfix.me/tenmig/migration"
	"go.hackfix.me/tenmig/target"
)

// Executor runs single migrations against single targets. Each run is one
// transaction that carries both the schema change and its ledger entry.
type Executor struct {
	LedgerTable string
	RunID       string
	AppliedBy   string
	TimeNow     func() time.Time
	Logger      *slog.Logger
}

// Apply runs the section of m for direction dir against t, and records it in
// t's ledger. On failure the transaction is rolled back and an ApplyError is
// returned. Rolling back a migration without a DOWN section returns a
// MissingDownSectionError before anything is executed.
func (e *Executor) Apply(
	ctx context.Context, t *target.Target, m *migration.Migration, dir migration.Direction,
) (_ ledger.Entry, rerr error) {
	if dir == migration.DirectionDown && !m.HasDown() {
		return ledger.Entry{}, MissingDownSectionError{
			Target: t.Name(), Version: m.Version, Name: m.Name, Path: m.Path,
		}
	}

	applyErr := func(stmtIdx int, sql string, err error) ApplyError {
		return ApplyError{
			Target: t.Name(), Version: m.Version, Name: m.Name, Direction: dir,
			Statement: stmtIdx, SQL: sql, Code: types.ErrCode(err), Err: err,
		}
	}

	appliedAt := time.Now()
	if e.TimeNow != nil {
		appliedAt = e.TimeNow()
	}
	start := time.Now()

	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, applyErr(0, "", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback()
		}
	}()

	led := ledger.New(t.DB.Dialect(), e.LedgerTable)
	if err = led.Ensure(ctx, tx); err != nil {
		return ledger.Entry{}, applyErr(0, "", err)
	}

	for i, stmt := range m.Statements(dir) {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return ledger.Entry{}, applyErr(i+1, stmt, err)
		}
	}

	entry := ledger.Entry{
		Version:       m.Version,
		Name:          m.Name,
		Scope:         m.Scope,
		Direction:     dir,
		AppliedAt:     appliedAt,
		AppliedBy:     e.AppliedBy,
		ExecutionTime: time.Since(start),
		Checksum:      m.Checksum(dir),
		RunID:         e.RunID,
	}
	if err = led.Record(ctx, tx, entry); err != nil {
		return ledger.Entry{}, applyErr(0, "", err)
	}

	if err = tx.Commit(); err != nil {
		return ledger.Entry{}, applyErr(0, "", err)
	}

	if e.Logger != nil {
		e.Logger.Debug("committed migration",
			"version", m.Version, "name", m.Name, "direction", dir,
			"statements", len(m.Statements(dir)), "duration", entry.ExecutionTime)
	}

	return entry, nil
}
