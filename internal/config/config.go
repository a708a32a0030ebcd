package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rewired-gh/mcforecast/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Data       DataConfig       `mapstructure:"data"`
	Report     ReportConfig     `mapstructure:"report"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SimulationConfig holds Monte Carlo engine parameters
type SimulationConfig struct {
	Trials      int            `mapstructure:"trials"`
	Horizon     int            `mapstructure:"horizon"`
	Seed        *uint64        `mapstructure:"seed"`
	Workers     int            `mapstructure:"workers"`
	FlatPolicy  string         `mapstructure:"flat_policy"` // reject | allow
	ReturnFloor float64        `mapstructure:"return_floor"`
	Weights     []WeightConfig `mapstructure:"weights"` // empty = equal weights
}

// WeightConfig assigns a portfolio weight to one entity. Entity names are case-sensitive,
// so weights are a list rather than a map.
type WeightConfig struct {
	Entity string  `mapstructure:"entity"`
	Weight float64 `mapstructure:"weight"`
}

// DataConfig holds the historical store and table selection
type DataConfig struct {
	DBPath         string   `mapstructure:"db_path"`
	Start          string   `mapstructure:"start"` // YYYY-MM-DD, inclusive
	End            string   `mapstructure:"end"`   // YYYY-MM-DD, inclusive
	Entities       []string `mapstructure:"entities"`
	Select         string   `mapstructure:"select"` // most | least | "" (explicit entities)
	Count          int      `mapstructure:"count"`
	DropIncomplete bool     `mapstructure:"drop_incomplete"`
}

// ReportConfig holds report rendering options
type ReportConfig struct {
	Format            string `mapstructure:"format"` // text | json | yaml
	InitialInvestment string `mapstructure:"initial_investment"`
	HistogramBins     int    `mapstructure:"histogram_bins"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional config file and
// environment variables (MCFORECAST_SECTION_KEY).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("MCFORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// seed has no default, so AutomaticEnv alone would never see it
	if err := v.BindEnv("simulation.seed"); err != nil {
		return nil, fmt.Errorf("failed to bind simulation.seed: %w", err)
	}

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Simulation defaults: 500 trials over eight years of monthly periods
	v.SetDefault("simulation.trials", 500)
	v.SetDefault("simulation.horizon", 96)
	v.SetDefault("simulation.workers", 0) // 0 = GOMAXPROCS
	v.SetDefault("simulation.flat_policy", "reject")
	v.SetDefault("simulation.return_floor", -1.0)

	// Data defaults
	v.SetDefault("data.db_path", "./data/prices.db")
	v.SetDefault("data.start", "")
	v.SetDefault("data.end", "")
	v.SetDefault("data.select", "")
	v.SetDefault("data.count", 3)
	v.SetDefault("data.drop_incomplete", false)

	// Report defaults
	v.SetDefault("report.format", "text")
	v.SetDefault("report.initial_investment", "")
	v.SetDefault("report.histogram_bins", 10)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Simulation config
	if c.Simulation.Trials < 1 {
		return fmt.Errorf("simulation.trials must be at least 1")
	}
	if c.Simulation.Horizon < 1 {
		return fmt.Errorf("simulation.horizon must be at least 1")
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("simulation.workers must not be negative")
	}
	validFlatPolicies := map[string]bool{"reject": true, "allow": true}
	if !validFlatPolicies[strings.ToLower(c.Simulation.FlatPolicy)] {
		return fmt.Errorf("simulation.flat_policy must be one of: reject, allow")
	}
	if math.IsNaN(c.Simulation.ReturnFloor) || c.Simulation.ReturnFloor < -1 || c.Simulation.ReturnFloor > 0 {
		return fmt.Errorf("simulation.return_floor must be between -1 and 0")
	}
	if len(c.Simulation.Weights) > 0 {
		if _, err := c.Weights(); err != nil {
			return err
		}
	}

	// Validate Data config
	if c.Data.DBPath == "" {
		return fmt.Errorf("data.db_path is required")
	}
	start, err := parseDate("data.start", c.Data.Start)
	if err != nil {
		return err
	}
	end, err := parseDate("data.end", c.Data.End)
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("data.start must be before data.end")
	}
	switch c.Data.Select {
	case "":
	case "most", "least":
		if c.Data.Count < 1 {
			return fmt.Errorf("data.count must be at least 1 when data.select is set")
		}
		if len(c.Data.Entities) > 0 {
			return fmt.Errorf("data.entities and data.select are mutually exclusive")
		}
	default:
		return fmt.Errorf("data.select must be one of: most, least")
	}

	// Validate Report config
	validFormats := map[string]bool{"text": true, "json": true, "yaml": true}
	if !validFormats[c.Report.Format] {
		return fmt.Errorf("report.format must be one of: text, json, yaml")
	}
	if _, err := c.InitialInvestment(); err != nil {
		return err
	}
	if c.Report.HistogramBins < 1 {
		return fmt.Errorf("report.histogram_bins must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Weights returns the configured weight override, or nil for equal weighting.
// Coverage of the table's entities is checked by the engine once the table is known.
func (c *Config) Weights() (models.Weights, error) {
	if len(c.Simulation.Weights) == 0 {
		return nil, nil
	}
	w := make(models.Weights, len(c.Simulation.Weights))
	for _, item := range c.Simulation.Weights {
		if item.Entity == "" {
			return nil, fmt.Errorf("simulation.weights entries must name an entity")
		}
		if _, dup := w[item.Entity]; dup {
			return nil, fmt.Errorf("simulation.weights lists %q more than once", item.Entity)
		}
		if item.Weight < 0 || math.IsNaN(item.Weight) || math.IsInf(item.Weight, 0) {
			return nil, fmt.Errorf("simulation.weights for %q must be a non-negative number", item.Entity)
		}
		w[item.Entity] = item.Weight
	}
	if sum := w.Sum(); math.Abs(sum-1) > models.WeightTolerance {
		return nil, fmt.Errorf("simulation.weights must sum to 1.0, got %.6f", sum)
	}
	return w, nil
}

// InitialInvestment returns the amount to project, or zero when none is configured.
func (c *Config) InitialInvestment() (decimal.Decimal, error) {
	if c.Report.InitialInvestment == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(c.Report.InitialInvestment)
	if err != nil {
		return decimal.Zero, fmt.Errorf("report.initial_investment must be a decimal amount: %w", err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("report.initial_investment must be positive")
	}
	return amount, nil
}

// StartDate returns the parsed data.start, or the zero time when unset.
func (c *Config) StartDate() time.Time {
	t, _ := parseDate("data.start", c.Data.Start)
	return t
}

// EndDate returns the parsed data.end, or the zero time when unset.
func (c *Config) EndDate() time.Time {
	t, _ := parseDate("data.end", c.Data.End)
	return t
}

func parseDate(key, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format", key)
	}
	return t, nil
}
