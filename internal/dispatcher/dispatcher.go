// Package dispatcher drains the transactional outbox onto the event queue.
//
// Delivery is at-least-once: a crash between publish and the published_at
// update re-publishes the row on the next cycle, so consumers dedupe on
// event_id.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/domain/outboxstore"
	"github.com/quantfold/tip/internal/telemetry"
)

// DefaultBatchSize bounds how many pending rows one cycle drains.
const DefaultBatchSize = 100

// Dispatcher publishes pending outbox rows in outbox_id order.
type Dispatcher struct {
	outbox    outboxstore.Store
	queue     bus.Publisher
	batchSize int
	metrics   *telemetry.PipelineMetrics
	logger    *log.Logger
	now       func() time.Time
}

// Option adjusts dispatcher construction.
type Option func(*Dispatcher)

// WithBatchSize overrides the per-cycle row limit.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides the published_at clock.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a dispatcher over the outbox store and queue.
func New(outbox outboxstore.Store, queue bus.Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		outbox:    outbox,
		queue:     queue,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOnce drains one batch and returns how many rows were published.
// Rows published before a failure keep their published_at stamp; the failed
// row stays pending so the next cycle retries from it.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	rows, err := d.outbox.ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox rows: %w", err)
	}

	var (
		published  []int64
		publishErr error
	)
	for _, row := range rows {
		if err := d.queue.Publish(ctx, row.Payload); err != nil {
			publishErr = fmt.Errorf("publish outbox row %d: %w", row.OutboxID, err)
			break
		}
		published = append(published, row.OutboxID)
	}

	if len(published) > 0 {
		d.metrics.AddOutboxPublished(ctx, len(published))
		if err := d.outbox.MarkPublished(ctx, published, d.now().UTC()); err != nil {
			// The rows went out; without the stamp they re-publish
			// next cycle, which at-least-once delivery tolerates.
			return len(published), fmt.Errorf("mark outbox rows published: %w", err)
		}
	}
	return len(published), publishErr
}

// LoopConfig controls a dispatch loop.
type LoopConfig struct {
	// Interval between cycles. Zero or negative runs exactly one cycle
	// and propagates its error.
	Interval time.Duration
	// MaxCycles stops the loop after that many cycles; zero means unbounded.
	MaxCycles int
}

// Loop runs dispatch cycles until the context is cancelled or MaxCycles is
// reached. In periodic mode cycle failures are logged and the loop keeps
// going; the failed row is retried next cycle.
func (d *Dispatcher) Loop(ctx context.Context, cfg LoopConfig) error {
	var cycles, total int
	defer func() {
		d.logf("dispatcher: loop stopped after %d cycles: published=%d", cycles, total)
	}()

	for {
		count, err := d.DispatchOnce(ctx)
		cycles++
		total += count

		if cfg.Interval <= 0 {
			return err
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			d.logf("dispatcher: cycle failed: %v", err)
		case count > 0:
			d.logf("dispatcher: published %d outbox rows", count)
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

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
