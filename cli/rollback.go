package cli

import (
	actx "go.hackfix.me/tenmig/app/context"
	"go.hackfix.me/tenmig/engine"
)

// Rollback reverts applied migrations.
type Rollback struct {
	TargetFlags `embed:""`

	To     int  `default:"-1" help:"Revert every applied migration above this version. 0 reverts all of them."`
	Steps  int  `help:"Number of most recently applied migrations to revert. Defaults to 1."`
	DryRun bool `help:"Only show the migrations that would be reverted."`
}

// Run the rollback command.
func (c *Rollback) Run(appCtx *actx.Context, g *Globals) error {
	mode, err := c.mode()
	if err != nil {
		return err
	}

	if c.To >= 0 && c.Steps > 0 {
		return runtimeError("--to and --steps can't be used together", nil)
	}
	if c.Steps < 0 {
		return runtimeError("invalid value of --steps", nil)
	}

	opts := engine.RollbackOptions{Mode: mode, DryRun: c.DryRun, Steps: c.Steps}
	if c.To >= 0 {
		opts.ToVersion = &c.To
	}

	orch, err := newOrchestrator(appCtx, g, c.Tenant...)
	if err != nil {
		return err
	}

	report, err := orch.Rollback(appCtx.Ctx, opts)
	if err != nil {
		return runtimeError("failed rolling back migrations", err)
	}

	if err = renderChanges(appCtx, report); err != nil {
		return err
	}

	return report.Err() //nolint:wrapcheck // The exit code is read from the error.
}
