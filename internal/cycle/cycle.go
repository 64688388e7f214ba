// Package cycle drives the reconciliation engine on a fixed period with no
// self-overlap: the next cycle never starts before the previous one has
// fully returned, and the loop exits as soon as its context is cancelled
// rather than waiting out the sleep.
package cycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc executes a single reconciliation cycle. Cancellation during a run
// is the caller's responsibility to honor at whatever granularity it can
// (the reconciliation engine checks ctx at symbol boundaries).
type RunFunc func(ctx context.Context) error

// Driver repeatedly calls a RunFunc every Period, sleeping only for the
// remainder of the period once a cycle has returned.
type Driver struct {
	Period time.Duration
	Log    zerolog.Logger
}

// Run blocks until ctx is cancelled. It returns ctx.Err() on shutdown.
func (d *Driver) Run(ctx context.Context, run RunFunc) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		if err := run(ctx); err != nil {
			d.Log.Error().Err(err).Msg("cycle failed")
		}
		elapsed := time.Since(start)

		sleep := d.Period - elapsed
		if sleep < 0 {
			d.Log.Warn().Dur("elapsed", elapsed).Dur("period", d.Period).Msg("cycle exceeded its period, running back to back")
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
