package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mcforecast/internal/config"
	"github.com/rewired-gh/mcforecast/internal/logger"
	"github.com/rewired-gh/mcforecast/internal/storage"
)

var version = "0.1.0-dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcforecast",
		Short: "Monte Carlo forecasting of real-estate prices",
		Long: `mcforecast stores historical price observations per region and simulates
future portfolio value with a Monte Carlo random walk of period returns.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite price database (overrides data.db_path)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newImportCmd(),
		newEntitiesCmd(),
		newForecastCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcforecast version %s\n", version)
		},
	}
}

// loadConfig loads the configuration named by --config and applies --db. A missing
// default config file is not an error; a missing explicit one is.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Data.DBPath = db
	}
	return cfg, nil
}

// setup validates cfg, initializes logging and opens the price store.
func setup(cfg *config.Config) (*storage.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	store, err := storage.New(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("Opened price store at %s", cfg.Data.DBPath)
	return store, nil
}

func closeStore(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}
