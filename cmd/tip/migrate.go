package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/tip/config"
	"github.com/quantfold/tip/internal/infra/persistence/migrations"
)

const migrateTimeout = 30 * time.Second

func newMigrateCmd() *cobra.Command {
	var (
		dsn string
		dir string
	)

	cmd := &cobra.Command{
		Use:   "migrate [up|down [steps]]",
		Short: "Apply or roll back the pipeline schema migrations",
		Long: "Applies the SQL migrations embedded in the binary, or the ones under --dir\n" +
			"when set. Defaults to up; down rolls back one step unless a count is given.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if strings.TrimSpace(dsn) == "" {
				dsn = config.FromEnv().PostgresDSN
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			direction := "up"
			if len(args) > 0 {
				direction = args[0]
			}
			switch direction {
			case "up":
				return migrations.Apply(ctx, dsn, dir, logger)
			case "down":
				steps := 1
				if len(args) > 1 {
					n, err := strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("invalid down steps %q: %w", args[1], err)
					}
					steps = n
				}
				return migrations.Rollback(ctx, dsn, dir, steps, logger)
			default:
				return fmt.Errorf("unknown direction %q (expected up or down)", direction)
			}
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN; defaults to PG_DSN")
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory; empty uses the embedded SQL")
	return cmd
}
