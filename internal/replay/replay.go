// Package replay re-publishes persisted events over a time window.
//
// Replay reads committed rows only and bypasses the outbox entirely. It does
// not dedupe against prior deliveries; consumers stay idempotent on event_id.
package replay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/domain/eventstore"
)

// Replayer streams stored event payloads back onto the queue.
type Replayer struct {
	events eventstore.Store
	queue  bus.Publisher
	logger *log.Logger
}

// Option adjusts replayer construction.
type Option func(*Replayer)

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Replayer) { r.logger = l }
}

// New builds a replayer over the event store and queue.
func New(events eventstore.Store, queue bus.Publisher, opts ...Option) *Replayer {
	r := &Replayer{events: events, queue: queue}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Window publishes the payload of every event whose column timestamp lies in
// [start, end], ascending by that column. Returns the count published; a
// publish failure stops the stream and reports how far it got.
func (r *Replayer) Window(ctx context.Context, column eventstore.TimeColumn, start, end time.Time) (int, error) {
	rows, err := r.events.ListWindow(ctx, column, start, end)
	if err != nil {
		return 0, fmt.Errorf("list %s window: %w", column, err)
	}

	count := 0
	for _, row := range rows {
		if err := r.queue.Publish(ctx, row.PayloadJSON); err != nil {
			return count, fmt.Errorf("publish event %s: %w", row.EventID, err)
		}
		count++
	}

	r.logf("replay: published %d events by %s in [%s, %s]",
		count, column, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	return count, nil
}

func (r *Replayer) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
