package cli

import (
	"errors"

	actx "go.hackfix.me/tenmig/app/context"
	aerrors "go.hackfix.me/tenmig/app/errors"
	"go.hackfix.me/tenmig/db"
	"go.hackfix.me/tenmig/engine"
	"go.hackfix.me/tenmig/migration"
	"go.hackfix.me/tenmig/target"
)

// TargetFlags select the databases a command operates on.
type TargetFlags struct {
	Targets string   `enum:"host,tenant,all" default:"all" help:"Which databases to operate on. One of: ${enum}."`
	Tenant  []string `help:"Only operate on these tenants. Can be repeated."`
}

func (t TargetFlags) mode() (target.Mode, error) {
	mode, err := target.ModeFromString(t.Targets)
	if err != nil {
		return "", err //nolint:wrapcheck // This is fine.
	}
	if len(t.Tenant) > 0 && !mode.IncludesTenants() {
		return "", aerrors.NewRuntimeError("--tenant can't be used with --targets=host", nil, "")
	}
	return mode, nil
}

// newOrchestrator loads the migration registry and sets up the orchestrator
// for a single command invocation.
func newOrchestrator(appCtx *actx.Context, g *Globals, tenants ...string) (*engine.Orchestrator, error) {
	if g.HostDSN == "" {
		return nil, aerrors.NewRuntimeError("no host database was configured", nil,
			"Set it with --host-dsn, TENMIG_HOST_DSN, DATABASE_URL or host.dsn in the configuration file.")
	}

	reg, err := migration.Load(appCtx.FS, g.MigrationsDir)
	if err != nil {
		hint := "Fix the reported migration file and try again."
		var cerr migration.ConflictError
		if errors.As(err, &cerr) {
			hint = "Every version must be used only once per scope, and host and tenant must not share versions with both."
		}
		return nil, aerrors.NewRuntimeError("failed loading migrations",
			aerrors.With(err, "migrations_dir", g.MigrationsDir), hint)
	}

	appCtx.Logger.Debug("loaded migrations", "migrations_dir", g.MigrationsDir,
		"host", reg.Len(migration.KindHost), "tenant", reg.Len(migration.KindTenant))

	resolverOpts := []target.Option{
		target.WithTenantFilter(tenants...),
		target.WithLogger(appCtx.Logger),
		target.WithOpenOptions(
			db.WithMaxOpenConns(g.MaxConnections),
			db.WithPingTimeout(g.ConnectTimeout),
		),
	}
	if appCtx.OpenDB != nil {
		resolverOpts = append(resolverOpts, target.WithOpener(appCtx.OpenDB))
	}
	if g.tenantsQuery != "" {
		resolverOpts = append(resolverOpts, target.WithTenantsQuery(g.tenantsQuery))
	}
	if g.Workers > 0 {
		resolverOpts = append(resolverOpts, target.WithConcurrency(g.Workers))
	}
	resolver, err := target.NewResolver(g.HostDSN, resolverOpts...)
	if err != nil {
		return nil, err //nolint:wrapcheck // This is fine.
	}

	orchOpts := []engine.Option{
		engine.WithWorkers(g.Workers),
		engine.WithTimeout(g.Timeout),
		engine.WithLogger(appCtx.Logger),
	}
	if g.ledgerTable != "" {
		orchOpts = append(orchOpts, engine.WithLedgerTable(g.ledgerTable))
	}
	if appCtx.TimeSource != nil {
		orchOpts = append(orchOpts, engine.WithTimeNow(appCtx.TimeSource.Now))
	}

	//nolint:wrapcheck // This is fine.
	return engine.NewOrchestrator(reg, resolver, orchOpts...)
}

func runtimeError(msg string, err error) error {
	var hint string
	var cerr target.ConnectionError
	if errors.As(err, &cerr) {
		hint = "Check that the database is running and its DSN is correct."
	}
	return aerrors.NewRuntimeError(msg, err, hint)
}
