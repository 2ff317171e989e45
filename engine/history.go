package engine

import (
	"context"

	"go.hackfix.me/tenmig/db/ledger"
	"go.hackfix.me/tenmig/target"
)

// TargetHistory is the ledger history of one target, most recent first.
type TargetHistory struct {
	Target  string
	Entries []ledger.Entry
	Err     error
}

// History returns the ledger history of every target resolved in mode. At
// most limit entries are returned per target; a limit <= 0 returns all.
func (o *Orchestrator) History(ctx context.Context, mode target.Mode, limit int) ([]TargetHistory, error) {
	res, err := o.resolver.Resolve(ctx, mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			o.logger.Warn("failed closing target databases", "error", cerr)
		}
	}()

	hist := make([]TargetHistory, 0, len(res.Targets)+len(res.Failures))
	for _, t := range res.Targets {
		th := TargetHistory{Target: t.Name(), Entries: []ledger.Entry{}}
		for e, err := range o.ledger(t).History(ctx, t.DB, limit) {
			if err != nil {
				th.Err = err
				break
			}
			th.Entries = append(th.Entries, e)
		}
		hist = append(hist, th)
	}
	for _, f := range res.Failures {
		hist = append(hist, TargetHistory{Target: f.Name(), Err: f})
	}

	return hist, nil
}
