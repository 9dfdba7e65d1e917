// Package consumer provides the long-polling queue consumer scaffold and the
// ticker-mention processor built on it.
package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/telemetry"
)

// DefaultErrorWait is the pause between batches after a receive failure.
const DefaultErrorWait = 5 * time.Second

// Handler processes one message body. A non-nil error leaves the message on
// the queue; it reappears once the visibility timeout expires.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, body []byte) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, body []byte) error { return f(ctx, body) }

// BatchStats counts one batch's outcomes.
type BatchStats struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Add accumulates other into s.
func (s *BatchStats) Add(other BatchStats) {
	s.Received += other.Received
	s.Processed += other.Processed
	s.Failed += other.Failed
}

// Consumer drains a queue batch by batch through a Handler.
type Consumer struct {
	queue     bus.Receiver
	handler   Handler
	metrics   *telemetry.PipelineMetrics
	logger    *log.Logger
	errorWait time.Duration
}

// Option adjusts consumer construction.
type Option func(*Consumer)

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// WithErrorWait overrides the pause after receive failures.
func WithErrorWait(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.errorWait = d
		}
	}
}

// New builds a consumer over the queue and handler.
func New(queue bus.Receiver, handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		queue:     queue,
		handler:   handler,
		errorWait: DefaultErrorWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessBatch receives one batch and feeds each message to the handler.
// Handled messages are deleted; failed ones stay for redelivery.
func (c *Consumer) ProcessBatch(ctx context.Context) (BatchStats, error) {
	var stats BatchStats

	msgs, err := c.queue.Receive(ctx)
	if err != nil {
		return stats, fmt.Errorf("receive batch: %w", err)
	}
	stats.Received = len(msgs)

	for _, msg := range msgs {
		if err := c.handler.Handle(ctx, msg.Body); err != nil {
			c.logf("consumer: message %s failed: %v", msg.ID, err)
			c.metrics.IncConsumerMessage(ctx, "failed")
			stats.Failed++
			continue
		}
		if err := c.queue.Delete(ctx, msg.Receipt); err != nil {
			c.logf("consumer: delete message %s: %v", msg.ID, err)
			c.metrics.IncConsumerMessage(ctx, "failed")
			stats.Failed++
			continue
		}
		c.metrics.IncConsumerMessage(ctx, "processed")
		stats.Processed++
	}
	return stats, nil
}

// Run drains batches until the context is cancelled or maxIterations batches
// completed; zero means run forever. Receive failures pause the loop on a
// constant backoff and do not count as iterations.
func (c *Consumer) Run(ctx context.Context, maxIterations int) (BatchStats, error) {
	var totals BatchStats
	iterations := 0
	wait := backoff.NewConstantBackOff(c.errorWait)

	c.logf("consumer: starting")
	defer func() {
		c.logf("consumer: stopped: received=%d processed=%d failed=%d",
			totals.Received, totals.Processed, totals.Failed)
	}()

	for {
		stats, err := c.ProcessBatch(ctx)
		totals.Add(stats)

		if err != nil {
			if ctx.Err() != nil {
				return totals, nil
			}
			c.logf("consumer: batch failed: %v", err)
			c.metrics.IncError(ctx, "consumer")

			sleep := wait.NextBackOff()
			if sleep == backoff.Stop {
				sleep = c.errorWait
			}
			select {
			case <-ctx.Done():
				return totals, nil
			case <-time.After(sleep):
			}
			continue
		}

		wait.Reset()
		if stats.Received > 0 {
			c.logf("consumer: batch received=%d processed=%d failed=%d | total received=%d processed=%d failed=%d",
				stats.Received, stats.Processed, stats.Failed,
				totals.Received, totals.Processed, totals.Failed)
		}

		iterations++
		if maxIterations > 0 && iterations >= maxIterations {
			return totals, nil
		}
		if ctx.Err() != nil {
			return totals, nil
		}
	}
}

func (c *Consumer) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
