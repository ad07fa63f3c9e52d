package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one strategy instance.
type Config struct {
	Strategy StrategyConfig       `yaml:"strategy"`
	Venues   map[string]VenueFees `yaml:"venues"`
	Storage  StorageConfig        `yaml:"storage"`
	Log      LogConfig            `yaml:"log"`
}

// StrategyConfig holds every recognized option from the decision engine
// (§6.3 of the core's external-interface contract).
type StrategyConfig struct {
	CycleIntervalSeconds      int     `yaml:"cycle_interval_seconds"`
	Leverage                  float64 `yaml:"leverage"`
	MinSpread                 float64 `yaml:"min_spread"`
	MinPositionUsd            float64 `yaml:"min_position_usd"`
	BalanceUsagePct           float64 `yaml:"balance_usage_pct"`
	MinOpenInterestUsd        float64 `yaml:"min_open_interest_usd"`
	TargetNetAPY              float64 `yaml:"target_net_apy"`
	TargetAggregateAPY        float64 `yaml:"target_aggregate_apy"`
	MaxPortfolioUsd           float64 `yaml:"max_portfolio_usd"`
	AsymmetricFillTimeoutMs   int     `yaml:"asymmetric_fill_timeout_ms"`
	MaxOrderWaitRetries       int     `yaml:"max_order_wait_retries"`
	OrderWaitBaseIntervalMs   int     `yaml:"order_wait_base_interval_ms"`
	MaxWorstCaseBreakEvenDays float64 `yaml:"max_worst_case_break_even_days"`
	TWAPMaxDurationMinutes    int     `yaml:"twap_max_duration_minutes"`
}

// VenueFees holds the maker/taker fee rates for one venue, keyed by venue
// name in the Venues map, plus its funding cadence.
type VenueFees struct {
	MakerFeeRate       float64 `yaml:"maker_fee_rate"`
	TakerFeeRate       float64 `yaml:"taker_fee_rate"`
	EightHourlyFunding bool    `yaml:"eight_hourly_funding"`
}

// StorageConfig controls where persisted state (§6.4) lives.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config at path and applies .env overrides, mirroring
// the teacher's two-step Load -> applyEnvOverrides -> setDefaults pipeline.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CycleInterval returns the configured decision-cycle cadence as a
// time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Strategy.CycleIntervalSeconds) * time.Second
}

// FeeRate returns the maker or taker fee rate configured for venue, or 0 if
// the venue is unrecognized.
func (c *Config) FeeRate(venue string, taker bool) float64 {
	f, ok := c.Venues[strings.ToUpper(venue)]
	if !ok {
		return 0
	}
	if taker {
		return f.TakerFeeRate
	}
	return f.MakerFeeRate
}

// EightHourlyFunding reports whether venue settles funding every 8 hours
// rather than hourly, or false if the venue is unrecognized.
func (c *Config) EightHourlyFunding(venue string) bool {
	return c.Venues[strings.ToUpper(venue)].EightHourlyFunding
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults fills every StrategyConfig field left at its zero value with
// the default from §6.3's recognized-options table.
func setDefaults(cfg *Config) {
	if cfg.Strategy.CycleIntervalSeconds <= 0 {
		cfg.Strategy.CycleIntervalSeconds = 30
	}
	if cfg.Strategy.Leverage <= 0 {
		cfg.Strategy.Leverage = 2.0
	}
	if cfg.Strategy.MinSpread <= 0 {
		cfg.Strategy.MinSpread = 1e-4
	}
	if cfg.Strategy.MinPositionUsd <= 0 {
		cfg.Strategy.MinPositionUsd = 10
	}
	if cfg.Strategy.BalanceUsagePct <= 0 {
		cfg.Strategy.BalanceUsagePct = 0.9
	}
	if cfg.Strategy.MinOpenInterestUsd <= 0 {
		cfg.Strategy.MinOpenInterestUsd = 10_000
	}
	if cfg.Strategy.TargetNetAPY <= 0 {
		cfg.Strategy.TargetNetAPY = 0.35
	}
	if cfg.Strategy.TargetAggregateAPY <= 0 {
		cfg.Strategy.TargetAggregateAPY = 0.35
	}
	if cfg.Strategy.MaxPortfolioUsd <= 0 {
		cfg.Strategy.MaxPortfolioUsd = 50_000_000
	}
	if cfg.Strategy.AsymmetricFillTimeoutMs <= 0 {
		cfg.Strategy.AsymmetricFillTimeoutMs = 60_000
	}
	if cfg.Strategy.MaxOrderWaitRetries <= 0 {
		cfg.Strategy.MaxOrderWaitRetries = 10
	}
	if cfg.Strategy.OrderWaitBaseIntervalMs <= 0 {
		cfg.Strategy.OrderWaitBaseIntervalMs = 1_000
	}
	if cfg.Strategy.MaxWorstCaseBreakEvenDays <= 0 {
		cfg.Strategy.MaxWorstCaseBreakEvenDays = 7
	}
	if cfg.Strategy.TWAPMaxDurationMinutes <= 0 {
		cfg.Strategy.TWAPMaxDurationMinutes = 240
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "fundingarb.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Venues == nil {
		cfg.Venues = make(map[string]VenueFees)
	}
}
