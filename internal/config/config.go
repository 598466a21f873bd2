package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// StockConfig is the immutable per-symbol allocation plan.
type StockConfig struct {
	Allocation  decimal.Decimal `json:"allocation"`
	EntryTarget decimal.Decimal `json:"entry_target"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Sector      string          `json:"sector,omitempty"`
}

// BenchmarkConfig names a benchmark ETF tracked alongside the portfolio.
type BenchmarkConfig struct {
	Name string `json:"name,omitempty"`
}

// PortfolioConfig holds the portfolio-level thresholds.
type PortfolioConfig struct {
	BaselineInvestment   decimal.Decimal `json:"baseline_investment"`
	TrailingStopTrigger  decimal.Decimal `json:"trailing_stop_trigger"`
	TrailingStopDistance decimal.Decimal `json:"trailing_stop_distance"`
	MaxPortfolioLossPct  decimal.Decimal `json:"max_portfolio_loss_pct"`
	// DeactivateOnPullback re-enables the legacy behavior of un-arming a
	// trailing stop whenever the gain falls back below the trigger. Off by
	// default: the armed stop then only ever ratchets upward.
	DeactivateOnPullback bool   `json:"deactivate_on_pullback,omitempty"`
	ExperimentStartDate  string `json:"experiment_start_date,omitempty"`
}

// Config is the full per-run configuration. It is loaded once at startup and
// passed explicitly into every component; nothing mutates it afterwards.
type Config struct {
	Stocks     map[string]StockConfig     `json:"stocks"`
	Benchmarks map[string]BenchmarkConfig `json:"benchmarks,omitempty"`
	Portfolio  PortfolioConfig            `json:"portfolio"`

	// Operational settings sourced from the environment, not config.json.
	DataDir       string `json:"-"`
	MaxLogSizeMB  int64  `json:"-"`
	MaxLogBackups int    `json:"-"`
}

// Symbols returns the watch-list in sorted order for deterministic iteration.
func (c *Config) Symbols() []string {
	return sortedKeys(c.Stocks)
}

// BenchmarkSymbols returns the benchmark tickers in sorted order.
func (c *Config) BenchmarkSymbols() []string {
	return sortedKeys(c.Benchmarks)
}

// LoadEnv reads the .env file (if present) into the process environment and
// verifies the venue credentials are set. Secret values are echoed masked so
// a misconfigured deployment is visible in the logs without leaking keys.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	required := []string{
		"APCA_API_KEY_ID",
		"APCA_API_SECRET_KEY",
		"APCA_API_BASE_URL",
	}

	var missing []string
	for _, key := range required {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
			continue
		}
		masked := "***"
		if len(val) > 4 {
			masked = "***" + val[len(val)-4:]
		}
		log.Printf("%s=%s", key, masked)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// Load parses and validates the portfolio configuration file, then folds in
// the environment-sourced operational settings.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.DataDir = getEnvAsString("STOCKPILOT_DATA_DIR", ".")
	cfg.MaxLogSizeMB = int64(getEnvAsInt("STOCKPILOT_MAX_LOG_SIZE_MB", 10))
	cfg.MaxLogBackups = getEnvAsInt("STOCKPILOT_MAX_LOG_BACKUPS", 3)

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Stocks) == 0 {
		return fmt.Errorf("no stocks configured")
	}
	for symbol, s := range c.Stocks {
		if s.Allocation.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%s: allocation must be positive", symbol)
		}
		if s.EntryTarget.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%s: entry_target must be positive", symbol)
		}
		if s.StopLoss.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%s: stop_loss must be positive", symbol)
		}
	}

	p := c.Portfolio
	if p.BaselineInvestment.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("portfolio: baseline_investment must be positive")
	}
	if p.TrailingStopTrigger.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("portfolio: trailing_stop_trigger must be positive")
	}
	one := decimal.NewFromInt(1)
	if p.TrailingStopDistance.LessThanOrEqual(decimal.Zero) || p.TrailingStopDistance.GreaterThanOrEqual(one) {
		return fmt.Errorf("portfolio: trailing_stop_distance must be in (0, 1)")
	}
	return nil
}
