package engine

import (
	"log/slog"
	"os/user"
	"time"

	"github.com/nrednav/cuid2"

	"go.hackfix.me/tenmig/db/ledger"
)

// Option is a function that allows configuring the Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the maximum number of targets processed concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTimeout sets the maximum duration of a single operation over all
// targets. A zero duration disables the timeout.
func WithTimeout(dur time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = dur
	}
}

// WithLedgerTable sets the name of the ledger table in every target.
func WithLedgerTable(table string) Option {
	return func(o *Orchestrator) {
		if table != "" {
			o.ledgerTable = table
		}
	}
}

// WithAppliedBy sets the identity recorded in the ledger with every change.
func WithAppliedBy(name string) Option {
	return func(o *Orchestrator) {
		o.appliedBy = name
	}
}

// WithTimeNow sets the function used to timestamp ledger entries.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(o *Orchestrator) {
		if timeNowFn != nil {
			o.timeNow = timeNowFn
		}
	}
}

// WithRunIDGenerator sets the function that creates the ID of each run.
func WithRunIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newRunID = gen
		}
	}
}

// WithLogger sets the logger used by the Orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "engine")
	}
}

// DefaultOptions returns the default Orchestrator options.
func DefaultOptions() []Option {
	return []Option{
		WithWorkers(4),
		WithLedgerTable(ledger.DefaultTable),
		WithAppliedBy(currentUser()),
		WithTimeNow(time.Now),
		WithRunIDGenerator(cuid2.Generate),
		WithLogger(slog.Default()),
	}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
