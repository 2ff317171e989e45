// Package engine runs status, migrate and rollback operations across the host
// and tenant databases, one independent sequence of migrations per target.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"go.hackfix.me/tenmig/db/ledger"
	"go.hackfix.me/tenmig/migration"
	"go.hackfix.me/tenmig/target"
)

// Resolver finds the targets of an operation.
type Resolver interface {
	Resolve(ctx context.Context, mode target.Mode) (*target.Resolution, error)
}

// Orchestrator drives operations over all resolved targets.
type Orchestrator struct {
	registry    *migration.Registry
	resolver    Resolver
	workers     int
	timeout     time.Duration
	ledgerTable string
	appliedBy   string
	timeNow     func() time.Time
	newRunID    func() string
	logger      *slog.Logger
}

// NewOrchestrator returns a new Orchestrator that applies the migrations in
// registry to the targets found by resolver.
func NewOrchestrator(registry *migration.Registry, resolver Resolver, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("migration registry is required")
	}
	if resolver == nil {
		return nil, errors.New("target resolver is required")
	}

	o := &Orchestrator{registry: registry, resolver: resolver}
	for _, opt := range append(DefaultOptions(), opts...) {
		opt(o)
	}

	return o, nil
}

// MigrateOptions are the options of a migrate operation.
type MigrateOptions struct {
	Mode   target.Mode
	DryRun bool
	// ToVersion stops migrating after this version. 0 migrates to the latest
	// version.
	ToVersion int
}

// RollbackOptions are the options of a rollback operation.
type RollbackOptions struct {
	Mode   target.Mode
	DryRun bool
	// ToVersion, if set, reverts every applied migration above it. Otherwise
	// the Steps most recently applied migrations are reverted.
	ToVersion *int
	Steps     int
}

// Status reports the version state of every target without changing any.
func (o *Orchestrator) Status(ctx context.Context, mode target.Mode) (*Report, error) {
	return o.run(ctx, OpStatus, mode, false, o.statusTarget)
}

// Migrate applies pending migrations to every target, in ascending version
// order. A target stops at its first failing migration.
func (o *Orchestrator) Migrate(ctx context.Context, opts MigrateOptions) (*Report, error) {
	if opts.ToVersion < 0 {
		return nil, fmt.Errorf("invalid target version %d", opts.ToVersion)
	}
	return o.run(ctx, OpMigrate, opts.Mode, opts.DryRun,
		func(ctx context.Context, t *target.Target, ex *Executor, logger *slog.Logger) Result {
			return o.migrateTarget(ctx, t, ex, logger, opts)
		})
}

// Rollback reverts applied migrations on every target, in descending version
// order. A target stops at its first failing migration, or at the first
// migration without a DOWN section.
func (o *Orchestrator) Rollback(ctx context.Context, opts RollbackOptions) (*Report, error) {
	if opts.ToVersion != nil && *opts.ToVersion < 0 {
		return nil, fmt.Errorf("invalid target version %d", *opts.ToVersion)
	}
	if opts.Steps < 0 {
		return nil, fmt.Errorf("invalid number of steps %d", opts.Steps)
	}
	return o.run(ctx, OpRollback, opts.Mode, opts.DryRun,
		func(ctx context.Context, t *target.Target, ex *Executor, logger *slog.Logger) Result {
			return o.rollbackTarget(ctx, t, ex, logger, opts)
		})
}

type targetFunc func(ctx context.Context, t *target.Target, ex *Executor, logger *slog.Logger) Result

// run resolves the targets of an operation and runs fn for each of them
// concurrently. fn never fails as a whole: per-target errors are part of its
// Result, so one target can't cancel the others.
func (o *Orchestrator) run(ctx context.Context, op Operation, mode target.Mode, dryRun bool, fn targetFunc) (*Report, error) {
	runID := o.newRunID()
	logger := o.logger.With("run_id", runID, "operation", op)
	if dryRun {
		logger = logger.With("dry_run", true)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	res, err := o.resolver.Resolve(ctx, mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			logger.Warn("failed closing target databases", "error", cerr)
		}
	}()

	ex := &Executor{
		LedgerTable: o.ledgerTable,
		RunID:       runID,
		AppliedBy:   o.appliedBy,
		TimeNow:     o.timeNow,
		Logger:      logger,
	}

	results := make([]Result, len(res.Targets), len(res.Targets)+len(res.Failures))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, t := range res.Targets {
		g.Go(func() error {
			tLogger := logger.With("target", t.Name())
			tLogger.Debug("target started")
			t.DB.Resume()
			defer t.DB.Suspend()

			results[i] = fn(ctx, t, ex, tLogger)
			if results[i].Err != nil {
				tLogger.Error("target failed", "state", results[i].State, "error", results[i].Err)
			}
			tLogger.Debug("target finished", "state", results[i].State)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range res.Failures {
		results = append(results, Result{
			Target: f.Name(), Kind: f.Kind, TenantID: f.TenantID,
			State: StateUnreachable, Err: f,
		})
	}

	report := &Report{Operation: op, RunID: runID, DryRun: dryRun, Results: results}
	logger.Info("operation finished", "targets", len(results), "failed", len(report.Failed()))

	return report, nil
}

func newResult(t *target.Target) Result {
	return Result{Target: t.Name(), Kind: t.Kind, TenantID: t.TenantID}
}

func (o *Orchestrator) ledger(t *target.Target) *ledger.Ledger {
	return ledger.New(t.DB.Dialect(), o.ledgerTable)
}

// lock serializes mutating runs against the same database from concurrent
// processes.
func (o *Orchestrator) lock(ctx context.Context, t *target.Target, dryRun bool) (func(), error) {
	if dryRun {
		return func() {}, nil
	}
	release, err := t.DB.Lock(ctx, "tenmig:"+o.ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("failed locking %s: %w", t.Name(), err)
	}
	return release, nil
}

func (o *Orchestrator) statusTarget(ctx context.Context, t *target.Target, _ *Executor, _ *slog.Logger) Result {
	res := newResult(t)
	led := o.ledger(t)
	scopes := t.Kind.Scopes()

	applied, err := led.Applied(ctx, t.DB, scopes...)
	if err != nil {
		res.State, res.Err = StateUnreachable, err
		return res
	}
	current := maxVersion(applied)

	res.FromVersion, res.ToVersion, res.PlannedVersion = current, current, current
	res.Latest = o.registry.Latest(t.Kind)
	res.Pending = o.pending(t.Kind, current)

	for e, err := range led.History(ctx, t.DB, 1) {
		if err != nil {
			res.State, res.Err = StateUnreachable, err
			return res
		}
		res.LastAppliedAt = e.AppliedAt
	}

	for _, v := range sortedVersions(applied) {
		m, ok := o.registry.Get(t.Kind, v)
		if !ok {
			if res.Err == nil {
				res.Err = unknownVersionError(applied[v])
			}
			continue
		}
		if e := applied[v]; e.Checksum != "" && e.Checksum != m.Checksum(migration.DirectionUp) {
			res.Drift = append(res.Drift, v)
		}
	}

	switch {
	case res.Err != nil:
		res.State = StateConflict
	case res.Pending > 0:
		res.State = StatePendingForward
		res.PlannedVersion = res.Latest
	default:
		res.State = StateUpToDate
	}

	return res
}

func (o *Orchestrator) migrateTarget(
	ctx context.Context, t *target.Target, ex *Executor, logger *slog.Logger, opts MigrateOptions,
) (res Result) {
	res = newResult(t)
	res.Latest = o.registry.Latest(t.Kind)

	release, err := o.lock(ctx, t, opts.DryRun)
	if err != nil {
		res.State, res.Err = StatePartiallyMigrated, err
		return res
	}
	defer release()

	current, err := o.ledger(t).CurrentVersion(ctx, t.DB, t.Kind.Scopes()...)
	if err != nil {
		res.State, res.Err = StatePartiallyMigrated, err
		return res
	}
	res.FromVersion, res.ToVersion, res.PlannedVersion = current, current, current

	var plan []*migration.Migration
	for m := range o.registry.Pending(t.Kind, current) {
		if opts.ToVersion > 0 && m.Version > opts.ToVersion {
			break
		}
		plan = append(plan, m)
	}
	if len(plan) > 0 {
		res.PlannedVersion = plan[len(plan)-1].Version
	}
	defer func() { res.Pending = o.pending(t.Kind, res.ToVersion) }()

	for _, m := range plan {
		if opts.DryRun {
			logger.Info("would apply migration", "version", m.Version, "name", m.Name)
			res.Steps = append(res.Steps, Step{
				Version: m.Version, Name: m.Name, Direction: migration.DirectionUp, Planned: true,
			})
			continue
		}

		entry, err := ex.Apply(ctx, t, m, migration.DirectionUp)
		if err != nil {
			res.State, res.Err = StatePartiallyMigrated, err
			return res
		}
		logger.Info("applied migration",
			"version", m.Version, "name", m.Name, "duration", entry.ExecutionTime)
		res.Steps = append(res.Steps, Step{
			Version: m.Version, Name: m.Name, Direction: migration.DirectionUp,
			Duration: entry.ExecutionTime,
		})
		res.ToVersion = m.Version
	}

	res.State = StateUpToDate
	if opts.DryRun && len(plan) > 0 {
		res.State = StatePendingForward
	}

	return res
}

// rollbackPlan returns the migrations to revert on t, in descending version
// order, and the version the target is left at afterwards.
func (o *Orchestrator) rollbackPlan(
	kind migration.Kind, applied map[int]ledger.Entry, opts RollbackOptions,
) ([]*migration.Migration, int, error) {
	current := maxVersion(applied)
	versions := sortedVersions(applied)
	slices.Reverse(versions)

	var plan []*migration.Migration
	if opts.ToVersion != nil {
		to := *opts.ToVersion
		for _, v := range versions {
			if v <= to {
				break
			}
			if _, ok := o.registry.Get(kind, v); !ok {
				return nil, 0, unknownVersionError(applied[v])
			}
		}
		for m := range o.registry.AppliedAbove(kind, to) {
			if m.Version > current {
				continue
			}
			if _, ok := applied[m.Version]; !ok {
				return nil, 0, migration.ConflictError{
					Scope:   m.Scope,
					Version: m.Version,
					Paths:   []string{m.Path},
					Msg: fmt.Sprintf("version %d was never applied, refusing to roll back across the gap to version %d",
						m.Version, to),
				}
			}
			plan = append(plan, m)
		}
	} else {
		steps := max(opts.Steps, 1)
		for _, v := range versions[:min(steps, len(versions))] {
			m, ok := o.registry.Get(kind, v)
			if !ok {
				return nil, 0, unknownVersionError(applied[v])
			}
			plan = append(plan, m)
		}
	}

	remaining := len(versions) - len(plan)
	if remaining == 0 {
		return plan, 0, nil
	}
	return plan, versions[len(plan)], nil
}

func (o *Orchestrator) rollbackTarget(
	ctx context.Context, t *target.Target, ex *Executor, logger *slog.Logger, opts RollbackOptions,
) (res Result) {
	res = newResult(t)
	res.Latest = o.registry.Latest(t.Kind)

	release, err := o.lock(ctx, t, opts.DryRun)
	if err != nil {
		res.State, res.Err = StatePartiallyRolledBack, err
		return res
	}
	defer release()

	applied, err := o.ledger(t).Applied(ctx, t.DB, t.Kind.Scopes()...)
	if err != nil {
		res.State, res.Err = StatePartiallyRolledBack, err
		return res
	}
	current := maxVersion(applied)
	res.FromVersion, res.ToVersion, res.PlannedVersion = current, current, current
	defer func() { res.Pending = o.pending(t.Kind, res.ToVersion) }()

	plan, planned, err := o.rollbackPlan(t.Kind, applied, opts)
	if err != nil {
		res.State, res.Err = StateConflict, err
		return res
	}
	res.PlannedVersion = planned

	for _, m := range plan {
		if opts.DryRun {
			if !m.HasDown() {
				res.State = StatePartiallyRolledBack
				res.Err = MissingDownSectionError{
					Target: t.Name(), Version: m.Version, Name: m.Name, Path: m.Path,
				}
				return res
			}
			logger.Info("would roll back migration", "version", m.Version, "name", m.Name)
			res.Steps = append(res.Steps, Step{
				Version: m.Version, Name: m.Name, Direction: migration.DirectionDown, Planned: true,
			})
			continue
		}

		entry, err := ex.Apply(ctx, t, m, migration.DirectionDown)
		if err != nil {
			res.State, res.Err = StatePartiallyRolledBack, err
			return res
		}
		logger.Info("rolled back migration",
			"version", m.Version, "name", m.Name, "duration", entry.ExecutionTime)
		res.Steps = append(res.Steps, Step{
			Version: m.Version, Name: m.Name, Direction: migration.DirectionDown,
			Duration: entry.ExecutionTime,
		})
		delete(applied, m.Version)
		res.ToVersion = maxVersion(applied)
	}

	res.State = StateUpToDate
	if opts.DryRun && len(plan) > 0 {
		res.State = StatePendingBackward
	}

	return res
}

func unknownVersionError(e ledger.Entry) error {
	return migration.ConflictError{
		Scope:   e.Scope,
		Version: e.Version,
		Msg:     fmt.Sprintf("version %d (%s) is applied but has no migration file", e.Version, e.Name),
	}
}

func (o *Orchestrator) pending(kind migration.Kind, current int) int {
	n := 0
	for range o.registry.Pending(kind, current) {
		n++
	}
	return n
}

func maxVersion(applied map[int]ledger.Entry) int {
	current := 0
	for v := range applied {
		current = max(current, v)
	}
	return current
}

func sortedVersions(applied map[int]ledger.Entry) []int {
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}
