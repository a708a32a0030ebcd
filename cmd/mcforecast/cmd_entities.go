package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mcforecast/internal/config"
	"github.com/rewired-gh/mcforecast/internal/storage"
)

func newEntitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List stored entities ranked by mean price",
		Long: `List every entity with observations in the date range, cheapest first.

Examples:
  mcforecast entities
  mcforecast entities --start 2009-04-30 --end 2022-06-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRangeFlags(cmd, cfg)
			store, err := setup(cfg)
			if err != nil {
				return err
			}
			defer closeStore(store)

			ranked, err := store.RankByMeanValue(cmd.Context(), storage.Range{Start: cfg.StartDate(), End: cfg.EndDate()})
			if err != nil {
				return err
			}
			if len(ranked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entities found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tENTITY\tMEAN PRICE\tOBSERVATIONS")
			for i, m := range ranked {
				fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\n", i+1, m.Entity, m.Mean, m.Observations)
			}
			return tw.Flush()
		},
	}

	addRangeFlags(cmd)
	return cmd
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "First date to include (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last date to include (YYYY-MM-DD)")
}

// applyRangeFlags copies --start and --end over the configured data range.
func applyRangeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("start") {
		cfg.Data.Start, _ = cmd.Flags().GetString("start")
	}
	if cmd.Flags().Changed("end") {
		cfg.Data.End, _ = cmd.Flags().GetString("end")
	}
}
