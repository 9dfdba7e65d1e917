package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/tip/errs"
	"github.com/quantfold/tip/internal/bus"
	"github.com/quantfold/tip/internal/domain/eventstore"
	"github.com/quantfold/tip/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		minutes int
		by      string
	)

	cmd := &cobra.Command{
		Use:   "replay-last-minutes",
		Short: "Republish recent events to the queue for consumer reprocessing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			column := eventstore.TimeColumn(by)
			if !column.Valid() {
				return errs.New("replay", errs.CodeConfig,
					errs.WithMessage("--by must be ts_ingested or ts_event"))
			}
			if minutes <= 0 {
				return errs.New("replay", errs.CodeConfig,
					errs.WithMessage("--minutes must be positive"))
			}

			settings, err := loadSettings(logger)
			if err != nil {
				return err
			}
			if err := settings.RequireQueue(); err != nil {
				return err
			}

			pool, store, err := openStore(ctx, settings)
			if err != nil {
				return err
			}
			defer pool.Close()

			queue, err := openQueue(ctx, settings, bus.SQSOptions{})
			if err != nil {
				return err
			}

			end := time.Now().UTC()
			start := end.Add(-time.Duration(minutes) * time.Minute)
			count, err := replay.New(store.Events, queue, replay.WithLogger(logger)).
				Window(ctx, column, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events\n", count)
			return nil
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", 60, "window length ending now")
	cmd.Flags().StringVar(&by, "by", string(eventstore.ByIngestTime), "timestamp column: ts_ingested or ts_event")
	return cmd
}
