package cli

import (
	"errors"
	"fmt"
	"time"

	actx "go.hackfix.me/tenmig/app/context"
	"go.hackfix.me/tenmig/target"
	"go.hackfix.me/tenmig/xtime"
)

// History shows the version ledger of a single database.
type History struct {
	Tenant string `help:"Show the ledger of this tenant instead of the host database."`
	Limit  int    `default:"20" help:"Maximum number of entries to show. 0 shows all of them."`
}

// Run the history command.
func (c *History) Run(appCtx *actx.Context, g *Globals) error {
	mode := target.ModeHostOnly
	var tenants []string
	if c.Tenant != "" {
		mode, tenants = target.ModeTenantOnly, []string{c.Tenant}
	}

	orch, err := newOrchestrator(appCtx, g, tenants...)
	if err != nil {
		return err
	}

	hist, err := orch.History(appCtx.Ctx, mode, c.Limit)
	if err != nil {
		return runtimeError("failed resolving databases", err)
	}
	if len(hist) == 0 {
		return runtimeError(fmt.Sprintf("tenant not found: %s", c.Tenant), nil)
	}

	th := hist[0]
	if th.Err != nil {
		if errors.Is(th.Err, target.ErrUnknownTenant) {
			return runtimeError(fmt.Sprintf("tenant not found: %s", c.Tenant), nil)
		}
		return runtimeError(fmt.Sprintf("failed reading the history of %s", th.Target), th.Err)
	}

	header := []string{"Version", "Name", "Scope", "Direction", "Applied At", "Applied By", "Duration", "Run ID"}
	data := make([][]string, 0, len(th.Entries))
	for _, e := range th.Entries {
		data = append(data, []string{
			fmt.Sprintf("%03d", e.Version), e.Name, string(e.Scope), string(e.Direction),
			e.AppliedAt.UTC().Format(time.DateTime), e.AppliedBy,
			xtime.FormatDuration(e.ExecutionTime, time.Millisecond), e.RunID,
		})
	}
	if len(data) == 0 {
		fmt.Fprintf(appCtx.Stdout, "No migrations were applied to %s.\n", th.Target)
		return nil
	}

	if err = renderTable(appCtx.Stdout, header, data); err != nil {
		return fmt.Errorf("failed rendering history table: %w", err)
	}
	if c.Limit > 0 && len(data) == c.Limit {
		fmt.Fprintf(appCtx.Stdout, "Showing the %d most recent entries.\n", c.Limit)
	}

	return nil
}
