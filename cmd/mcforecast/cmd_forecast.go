package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mcforecast/internal/config"
	"github.com/rewired-gh/mcforecast/internal/forecast"
	"github.com/rewired-gh/mcforecast/internal/logger"
	"github.com/rewired-gh/mcforecast/internal/models"
	"github.com/rewired-gh/mcforecast/internal/report"
	"github.com/rewired-gh/mcforecast/internal/storage"
	"github.com/rewired-gh/mcforecast/internal/telegram"
)

func newForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Simulate future portfolio value from stored prices",
		Long: `Run a Monte Carlo forecast of an equally weighted (or custom weighted)
portfolio of entities and print the distribution of final cumulative returns.

Entities are chosen explicitly with --entity, or by mean price with --select.

Examples:
  mcforecast forecast --entity "Kings, NY" --entity "Cook, IL"
  mcforecast forecast --select most --count 3 --start 2009-04-30 --invest 10000
  mcforecast forecast --select least --trials 2000 --seed 42 --format json
  mcforecast forecast --entity A --entity B --weight A=0.7 --weight B=0.3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyForecastFlags(cmd, cfg); err != nil {
				return err
			}
			store, err := setup(cfg)
			if err != nil {
				return err
			}
			defer closeStore(store)

			var notifier *telegram.Client
			if cfg.Telegram.Enabled {
				notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
				if err != nil {
					return fmt.Errorf("failed to initialize Telegram client: %w", err)
				}
				logger.Info("Telegram client initialized successfully")
			} else {
				logger.Debug("Telegram notifications disabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, err := runForecast(ctx, store, cfg)
			if err != nil {
				if notifier != nil && !errors.Is(err, context.Canceled) {
					if sendErr := notifier.SendError(context.Background(), err); sendErr != nil {
						logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
					}
				}
				return err
			}

			out, err := r.Render(cfg.Report.Format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)

			if notifier != nil {
				if err := notifier.SendReport(ctx, r); err != nil {
					logger.Error("Failed to send Telegram notification: %v", err)
				} else {
					logger.Info("Sent forecast %s to Telegram", r.RunID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArray("entity", nil, "Entity to include (repeatable)")
	cmd.Flags().String("select", "", "Pick entities by mean price: most or least")
	cmd.Flags().Int("count", 0, "Number of entities picked by --select")
	addRangeFlags(cmd)
	cmd.Flags().Bool("drop-incomplete", false, "Drop entities missing any date instead of failing")
	cmd.Flags().Int("trials", 0, "Number of simulated paths")
	cmd.Flags().Int("horizon", 0, "Number of future periods per path")
	cmd.Flags().Uint64("seed", 0, "Random seed for reproducible runs")
	cmd.Flags().Int("workers", 0, "Concurrent trial workers (0 = GOMAXPROCS)")
	cmd.Flags().String("flat-policy", "", "Zero-variance entities: reject or allow")
	cmd.Flags().StringArray("weight", nil, "Portfolio weight as entity=weight (repeatable)")
	cmd.Flags().String("invest", "", "Initial investment to project, e.g. 10000")
	cmd.Flags().String("format", "", "Output format: text, json or yaml")
	cmd.Flags().Int("bins", 0, "Histogram bins in the report")
	cmd.Flags().Bool("notify", false, "Send the report to Telegram")
	return cmd
}

// applyForecastFlags overrides configuration values with the flags that were set.
func applyForecastFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	applyRangeFlags(cmd, cfg)

	if flags.Changed("entity") {
		cfg.Data.Entities, _ = flags.GetStringArray("entity")
		cfg.Data.Select = ""
	}
	if flags.Changed("select") {
		cfg.Data.Select, _ = flags.GetString("select")
		cfg.Data.Entities = nil
	}
	if flags.Changed("count") {
		cfg.Data.Count, _ = flags.GetInt("count")
	}
	if flags.Changed("drop-incomplete") {
		cfg.Data.DropIncomplete, _ = flags.GetBool("drop-incomplete")
	}
	if flags.Changed("trials") {
		cfg.Simulation.Trials, _ = flags.GetInt("trials")
	}
	if flags.Changed("horizon") {
		cfg.Simulation.Horizon, _ = flags.GetInt("horizon")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.Simulation.Seed = &seed
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("flat-policy") {
		cfg.Simulation.FlatPolicy, _ = flags.GetString("flat-policy")
	}
	if flags.Changed("weight") {
		raw, _ := flags.GetStringArray("weight")
		weights, err := parseWeightFlags(raw)
		if err != nil {
			return err
		}
		cfg.Simulation.Weights = weights
	}
	if flags.Changed("invest") {
		cfg.Report.InitialInvestment, _ = flags.GetString("invest")
	}
	if flags.Changed("format") {
		cfg.Report.Format, _ = flags.GetString("format")
	}
	if flags.Changed("bins") {
		cfg.Report.HistogramBins, _ = flags.GetInt("bins")
	}
	if notify, _ := flags.GetBool("notify"); notify {
		cfg.Telegram.Enabled = true
	}
	return nil
}

// parseWeightFlags parses "entity=weight" pairs. Entity names may contain '=' so the
// last one separates the weight.
func parseWeightFlags(raw []string) ([]config.WeightConfig, error) {
	out := make([]config.WeightConfig, 0, len(raw))
	for _, item := range raw {
		idx := strings.LastIndex(item, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid --weight %q: want entity=weight", item)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(item[idx+1:]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --weight %q: %w", item, err)
		}
		out = append(out, config.WeightConfig{Entity: strings.TrimSpace(item[:idx]), Weight: w})
	}
	return out, nil
}

// resolveEntities returns the explicitly configured entities or the ones picked by mean price.
func resolveEntities(ctx context.Context, store *storage.Storage, cfg *config.Config, r storage.Range) ([]string, error) {
	switch cfg.Data.Select {
	case "most":
		return store.MostExpensive(ctx, r, cfg.Data.Count)
	case "least":
		return store.LeastExpensive(ctx, r, cfg.Data.Count)
	}
	if len(cfg.Data.Entities) == 0 {
		return nil, errors.New("no entities to forecast: use --entity or --select")
	}
	return cfg.Data.Entities, nil
}

// runForecast loads the price table, runs the engine and builds the report.
func runForecast(ctx context.Context, store *storage.Storage, cfg *config.Config) (*report.Report, error) {
	r := storage.Range{Start: cfg.StartDate(), End: cfg.EndDate()}
	entities, err := resolveEntities(ctx, store, cfg, r)
	if err != nil {
		return nil, err
	}
	logger.Info("Forecasting %d entities: %s", len(entities), strings.Join(entities, "; "))

	table, err := store.LoadTable(ctx, entities, r, models.BuildOptions{DropIncomplete: cfg.Data.DropIncomplete})
	if err != nil {
		return nil, err
	}
	if len(table.Entities) < len(entities) {
		logger.Warn("Dropped %d entities with incomplete data", len(entities)-len(table.Entities))
	}
	logger.Debug("Loaded price table: %d entities x %d periods", len(table.Entities), table.Periods())

	weights, err := cfg.Weights()
	if err != nil {
		return nil, err
	}
	policy, err := forecast.ParseFlatPolicy(cfg.Simulation.FlatPolicy)
	if err != nil {
		return nil, err
	}
	engine, err := forecast.New(table, forecast.Config{
		Trials:      cfg.Simulation.Trials,
		Horizon:     cfg.Simulation.Horizon,
		Weights:     weights,
		Seed:        cfg.Simulation.Seed,
		Workers:     cfg.Simulation.Workers,
		FlatPolicy:  policy,
		ReturnFloor: cfg.Simulation.ReturnFloor,
	})
	if err != nil {
		return nil, err
	}

	ensemble, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := engine.Summarize()
	if err != nil {
		return nil, err
	}

	investment, err := cfg.InitialInvestment()
	if err != nil {
		return nil, err
	}
	return report.New(ensemble, summary, engine.Parameters(), report.Options{
		InitialInvestment: investment,
		HistogramBins:     cfg.Report.HistogramBins,
	})
}
