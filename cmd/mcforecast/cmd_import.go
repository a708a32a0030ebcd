package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mcforecast/internal/logger"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import price observations from a CSV file",
		Long: `Import price observations into the price database.

The CSV needs a header naming the date, entity and value columns, in any
order. Dates use the YYYY-MM-DD format. Existing observations for the same
entity and date are replaced.

Examples:
  mcforecast import --file prices.csv
  mcforecast import --file prices.csv --db ./data/prices.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := setup(cfg)
			if err != nil {
				return err
			}
			defer closeStore(store)

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			startTime := time.Now()
			n, err := store.ImportCSV(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", path, err)
			}
			logger.Info("Imported %d observations from %s in %v", n, path, time.Since(startTime))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d observations\n", n)
			return nil
		},
	}

	cmd.Flags().String("file", "", "CSV file to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
