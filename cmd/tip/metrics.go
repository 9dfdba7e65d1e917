package main

import (
	"github.com/spf13/cobra"

	"github.com/quantfold/tip/internal/telemetry"
)

const defaultMetricsAddr = ":9464"

func newServeMetricsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve the Prometheus pull endpoint on its own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			settings, err := loadSettings(logger)
			if err != nil {
				return err
			}

			provider, _, err := initTelemetry(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(provider, logger)

			return telemetry.ServeMetrics(ctx, addr, provider.Registry(), logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultMetricsAddr, "listen address for /metrics and /healthz")
	return cmd
}
