package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantfold/tip/config"
	"github.com/quantfold/tip/internal/connector/edgar"
)

func newLookupCIKCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup-cik <ticker>",
		Short: "Resolve a ticker symbol to its zero-padded CIK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectors, _, err := config.LoadConnectors(opts.connectorsPath(config.FromEnv()))
			if err != nil {
				return err
			}
			if err := connectors.Edgar.Identity.Validate(); err != nil {
				return err
			}

			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			cik, err := edgar.LookupCIK(cmd.Context(), connectors.Edgar.Identity.UserAgent("cik-lookup"), symbol)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", symbol, cik)
			return nil
		},
	}
}
