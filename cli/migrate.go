package cli

import (
	actx "go.hackfix.me/tenmig/app/context"
	"go.hackfix.me/tenmig/engine"
)

// Migrate applies pending migrations.
type Migrate struct {
	TargetFlags `embed:""`

	To     int  `help:"Stop after applying this migration version. Defaults to the latest version."`
	DryRun bool `help:"Only show the migrations that would be applied."`
}

// Run the migrate command.
func (c *Migrate) Run(appCtx *actx.Context, g *Globals) error {
	mode, err := c.mode()
	if err != nil {
		return err
	}
	if c.To < 0 {
		return runtimeError("invalid value of --to", nil)
	}

	orch, err := newOrchestrator(appCtx, g, c.Tenant...)
	if err != nil {
		return err
	}

	report, err := orch.Migrate(appCtx.Ctx, engine.MigrateOptions{
		Mode: mode, DryRun: c.DryRun, ToVersion: c.To,
	})
	if err != nil {
		return runtimeError("failed running migrations", err)
	}

	if err = renderChanges(appCtx, report); err != nil {
		return err
	}

	return report.Err() //nolint:wrapcheck // The exit code is read from the error.
}
