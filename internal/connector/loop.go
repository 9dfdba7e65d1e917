package connector

import (
	"context"
	"time"

	"github.com/quantfold/tip/internal/telemetry"
)

// LoopConfig controls the periodic runner loop.
type LoopConfig struct {
	// Interval between cycle starts. Zero or negative runs exactly one cycle.
	Interval time.Duration
	// MaxCycles bounds the loop; zero means unbounded.
	MaxCycles int
}

// Loop invokes RunOnce until the context is cancelled or MaxCycles is
// reached, recording each cycle on reporter when one is provided. A
// cancelled context stops the loop cleanly after the in-flight cycle.
func (r *Runner) Loop(ctx context.Context, cfg LoopConfig, reporter *telemetry.RunReporter) error {
	var totals CycleStats
	cycles := 0
	defer func() {
		r.logf("%s: loop stopped after %d cycles: fetched=%d ingested=%d deduped=%d errors=%d",
			r.adapter.Name(), cycles, totals.Fetched, totals.Ingested, totals.Deduped, totals.Errors)
	}()

	for {
		stats, err := r.RunOnce(ctx)
		totals.Add(stats)
		cycles++
		if reporter != nil {
			reporter.RecordCycle(stats.Fetched, stats.Ingested, stats.Deduped, stats.Errors)
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			r.logf("%s: cycle failed: %v", r.adapter.Name(), err)
		default:
			r.logf("%s: cycle complete: fetched=%d ingested=%d deduped=%d errors=%d",
				r.adapter.Name(), stats.Fetched, stats.Ingested, stats.Deduped, stats.Errors)
		}

		if cfg.Interval <= 0 {
			return nil
		}
		if cfg.MaxCycles > 0 && cycles >= cfg.MaxCycles {
			return nil
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
