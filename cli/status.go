package cli

import (
	actx "go.hackfix.me/tenmig/app/context"
)

// Status shows the schema version of every database.
type Status struct {
	TargetFlags `embed:""`
}

// Run the status command.
func (c *Status) Run(appCtx *actx.Context, g *Globals) error {
	mode, err := c.mode()
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(appCtx, g, c.Tenant...)
	if err != nil {
		return err
	}

	report, err := orch.Status(appCtx.Ctx, mode)
	if err != nil {
		return runtimeError("failed resolving databases", err)
	}

	if err = renderStatus(appCtx, report); err != nil {
		return err
	}

	return report.Err() //nolint:wrapcheck // The exit code is read from the error.
}
