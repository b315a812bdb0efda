package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantback platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Server configures the HTTP API listener.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ReportDir  string `yaml:"report_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls daily bar gathering.
type GatherConfig struct {
	StartDate       string   `yaml:"start_date"`
	Symbols         []string `yaml:"symbols"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// BacktestConfig holds every parameter of a simulation run. Zero values are
// replaced with defaults by applyDefaults so a minimal YAML file works.
type BacktestConfig struct {
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	Market    string   `yaml:"market"`
	Universe  []string `yaml:"universe"` // instrument codes, canonical order

	InitialCash     float64 `yaml:"initial_cash"`
	RebalancePeriod int     `yaml:"rebalance_period"` // trading days
	TopN            int     `yaml:"top_n"`
	LotSize         int64   `yaml:"lot_size"`

	BuyCommissionRate  float64 `yaml:"buy_commission_rate"`
	SellCommissionRate float64 `yaml:"sell_commission_rate"`
	MinCommission      float64 `yaml:"min_commission"`
	Slippage           float64 `yaml:"slippage"`
	RiskFreeRate       float64 `yaml:"risk_free_rate"`

	// Factor name → weight, each in [0, 1]. Weights are not required to sum
	// to 1; the composite score is a plain weighted sum.
	Factors map[string]float64 `yaml:"factors"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills in
// defaults for unset backtest parameters.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REPORT_DIR"); v != "" {
		cfg.Storage.ReportDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills unset backtest parameters with the platform defaults.
func applyDefaults(cfg *Config) {
	bt := &cfg.Backtest
	if bt.InitialCash == 0 {
		bt.InitialCash = 50000
	}
	if bt.RebalancePeriod == 0 {
		bt.RebalancePeriod = 20
	}
	if bt.TopN == 0 {
		bt.TopN = 3
	}
	if bt.LotSize == 0 {
		bt.LotSize = 100
	}
	if bt.BuyCommissionRate == 0 {
		bt.BuyCommissionRate = 0.0001
	}
	if bt.SellCommissionRate == 0 {
		bt.SellCommissionRate = 0.0003
	}
	if bt.MinCommission == 0 {
		bt.MinCommission = 5
	}
	if bt.Slippage == 0 {
		bt.Slippage = 0.0002
	}
	if bt.RiskFreeRate == 0 {
		bt.RiskFreeRate = 0.03
	}
	if bt.Market == "" {
		bt.Market = "cn"
	}
	if len(bt.Factors) == 0 {
		bt.Factors = map[string]float64{
			"rsi":        0.3,
			"volatility": 0.3,
			"momentum":   0.4,
		}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Gather.BatchSize == 0 {
		cfg.Gather.BatchSize = 500
	}
	if cfg.Gather.MaxWorkers == 0 {
		cfg.Gather.MaxWorkers = 4
	}
	if cfg.Gather.RateLimitPerMin == 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
}
