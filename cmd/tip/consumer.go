package main

import (
	"github.com/spf13/cobra"

	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/consumer"
)

func newRunConsumerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-consumer",
		Short: "Consume queued events and materialise ticker mention artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			settings, err := loadSettings(logger)
			if err != nil {
				return err
			}
			if err := settings.RequireQueue(); err != nil {
				return err
			}

			provider, metrics, err := initTelemetry(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider, logger)

			pool, store, err := openStore(ctx, settings)
			if err != nil {
				return err
			}
			defer pool.Close()

			// SQS caps one receive at ten messages.
			batch := opts.batchSize
			if batch > bus.DefaultReceiveBatch {
				logger.Printf("batch size capped from %d to %d", batch, bus.DefaultReceiveBatch)
				batch = bus.DefaultReceiveBatch
			}
			queue, err := openQueue(ctx, settings, bus.SQSOptions{ReceiveBatch: batch})
			if err != nil {
				return err
			}

			processor := consumer.NewTickerMentionProcessor(store.Artifacts,
				consumer.WithProcessorMetrics(metrics),
				consumer.WithProcessorLogger(logger),
			)
			c := consumer.New(queue, processor,
				consumer.WithMetrics(metrics),
				consumer.WithLogger(logger),
			)

			stats, err := c.Run(ctx, opts.maxCycles)
			logger.Printf("consumer stopped: received=%d processed=%d failed=%d",
				stats.Received, stats.Processed, stats.Failed)
			return err
		},
	}
}
