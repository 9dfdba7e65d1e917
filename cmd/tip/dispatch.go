package main

import (
	"github.com/spf13/cobra"

	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/dispatcher"
)

func newDispatchOutboxCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Publish pending outbox rows to the event queue",
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

			queue, err := openQueue(ctx, settings, bus.SQSOptions{})
			if err != nil {
				return err
			}

			d := dispatcher.New(store.Outbox, queue,
				dispatcher.WithLogger(logger),
				dispatcher.WithMetrics(metrics),
				dispatcher.WithBatchSize(opts.batchSize),
			)
			return d.Loop(ctx, dispatcher.LoopConfig{
				Interval:  opts.intervalDuration(),
				MaxCycles: opts.maxCycles,
			})
		},
	}
}
