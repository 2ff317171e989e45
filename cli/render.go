package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	actx "go.hackfix.me/tenmig/app/context"
	"go.hackfix.me/tenmig/engine"
	"go.hackfix.me/tenmig/xtime"
)

func renderStatus(appCtx *actx.Context, report *engine.Report) error {
	now := timeNow(appCtx)
	header := []string{"Target", "Version", "Latest", "Pending", "State", "Last Applied"}
	data := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		row := []string{res.Target, "-", "-", "-", string(res.State), "-"}
		if res.State != engine.StateUnreachable {
			row[1] = strconv.Itoa(res.FromVersion)
			row[2] = strconv.Itoa(res.Latest)
			row[3] = strconv.Itoa(res.Pending)
			row[5] = xtime.FormatAge(res.LastAppliedAt, now)
		}
		data = append(data, row)
	}

	if err := renderTable(appCtx.Stdout, header, data, 1, 2, 3); err != nil {
		return fmt.Errorf("failed rendering status table: %w", err)
	}

	for _, res := range report.Results {
		if len(res.Drift) > 0 {
			versions := make([]string, 0, len(res.Drift))
			for _, v := range res.Drift {
				versions = append(versions, fmt.Sprintf("%03d", v))
			}
			fmt.Fprintf(appCtx.Stdout, "%s: applied migrations changed on disk: %s\n",
				res.Target, strings.Join(versions, ", "))
		}
	}
	renderErrors(appCtx.Stdout, report)

	return nil
}

func renderChanges(appCtx *actx.Context, report *engine.Report) error {
	header := []string{"Target", "State", "From", "To", "Changes", "Duration"}
	data := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		row := []string{res.Target, string(res.State), "-", "-", "-", "-"}
		if res.State != engine.StateUnreachable {
			to := res.ToVersion
			if report.DryRun {
				to = res.PlannedVersion
			}
			row[2] = strconv.Itoa(res.FromVersion)
			row[3] = strconv.Itoa(to)
			row[4] = strconv.Itoa(len(res.Steps))
			var dur time.Duration
			for _, s := range res.Steps {
				dur += s.Duration
			}
			if !report.DryRun {
				row[5] = xtime.FormatDuration(dur, time.Millisecond)
			}
		}
		data = append(data, row)
	}

	if report.DryRun {
		fmt.Fprintln(appCtx.Stdout, "Dry run: no changes were made.")
	}
	if err := renderTable(appCtx.Stdout, header, data, 2, 3, 4); err != nil {
		return fmt.Errorf("failed rendering %s table: %w", report.Operation, err)
	}

	if report.DryRun {
		verb := "apply"
		if report.Operation == engine.OpRollback {
			verb = "revert"
		}
		for _, res := range report.Results {
			for _, s := range res.Steps {
				fmt.Fprintf(appCtx.Stdout, "%s: would %s %03d_%s\n", res.Target, verb, s.Version, s.Name)
			}
		}
	}
	renderErrors(appCtx.Stdout, report)

	return nil
}

func renderErrors(w io.Writer, report *engine.Report) {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s: %s\n", res.Target, res.Err)
		}
	}
}

func timeNow(appCtx *actx.Context) time.Time {
	if appCtx.TimeSource == nil {
		return time.Now()
	}
	return appCtx.TimeSource.Now()
}
