package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for simtrader.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Providers  Providers  `yaml:"providers"`
	Logging    Logging    `yaml:"logging"`
	Cache      Cache      `yaml:"cache"`
	Simulation Simulation `yaml:"simulation"`
	Warm       Warm       `yaml:"warm"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	CacheDir   string `yaml:"cache_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Providers configures the data providers. Default is the provider used for
// nicknames without a "provider:" prefix.
type Providers struct {
	Default string `yaml:"default"`
	FMP     FMP    `yaml:"fmp"`
	Yahoo   Yahoo  `yaml:"yahoo"`
	Alpaca  Alpaca `yaml:"alpaca"`

	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// FMP holds credentials for Financial Modeling Prep.
type FMP struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Yahoo configures the Yahoo chart endpoint.
type Yahoo struct {
	BaseURL string `yaml:"base_url"`
	Proxy   string `yaml:"proxy"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Cache configures the durable document cache. A zero MaxAge keeps entries
// forever.
type Cache struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// Simulation holds run parameters. Dates use the 2006-01-02 layout.
type Simulation struct {
	StartDate   string  `yaml:"start_date"`
	EndDate     string  `yaml:"end_date"`
	WarmupDays  int     `yaml:"warmup_days"`
	InitialCash float64 `yaml:"initial_cash"`
	Friction    float64 `yaml:"friction"`
	MaxWeight   float64 `yaml:"max_weight"`
	Calendar    string  `yaml:"calendar"` // "nyse" or "alpaca"
}

// Warm controls the scheduled cache warmer.
type Warm struct {
	Schedule   string   `yaml:"schedule"`
	Symbols    []string `yaml:"symbols"`
	Universes  []string `yaml:"universes"`
	MaxWorkers int      `yaml:"max_workers"`
	StartDate  string   `yaml:"start_date"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of the defaults, applies environment variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			CacheDir:   "data/cache",
			SQLitePath: "data/simtrader.db",
		},
		Providers: Providers{
			Default:     "fmp",
			FMP:         FMP{BaseURL: "https://financialmodelingprep.com"},
			Yahoo:       Yahoo{BaseURL: "https://query1.finance.yahoo.com"},
			Alpaca:      Alpaca{Feed: "sip"},
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Simulation: Simulation{
			WarmupDays:  365,
			InitialCash: 1000,
			Friction:    0.005,
			Calendar:    "nyse",
		},
		Warm: Warm{
			Schedule:   "0 18 * * 1-5",
			MaxWorkers: 4,
			StartDate:  "2007-01-01",
		},
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch c.Providers.Default {
	case "fmp", "yahoo", "alpaca", "pq":
	default:
		return fmt.Errorf("providers.default %q is not one of fmp, yahoo, alpaca, pq", c.Providers.Default)
	}
	if c.Providers.MaxAttempts < 1 {
		return fmt.Errorf("providers.max_attempts must be >= 1, got %d", c.Providers.MaxAttempts)
	}
	if c.Simulation.WarmupDays < 0 {
		return fmt.Errorf("simulation.warmup_days must be >= 0, got %d", c.Simulation.WarmupDays)
	}
	if c.Simulation.Friction < 0 || c.Simulation.Friction >= 1 {
		return fmt.Errorf("simulation.friction must be in [0, 1), got %g", c.Simulation.Friction)
	}
	if c.Simulation.InitialCash <= 0 {
		return fmt.Errorf("simulation.initial_cash must be > 0, got %g", c.Simulation.InitialCash)
	}
	if c.Simulation.MaxWeight < 0 {
		return fmt.Errorf("simulation.max_weight must be >= 0, got %g", c.Simulation.MaxWeight)
	}
	switch c.Simulation.Calendar {
	case "nyse", "alpaca":
	default:
		return fmt.Errorf("simulation.calendar %q is not one of nyse, alpaca", c.Simulation.Calendar)
	}
	for _, d := range []struct{ name, value string }{
		{"simulation.start_date", c.Simulation.StartDate},
		{"simulation.end_date", c.Simulation.EndDate},
		{"warm.start_date", c.Warm.StartDate},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.Providers.FMP.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Providers.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Providers.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Providers.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Providers.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Providers.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Providers.Alpaca.APISecret = v
	}
}

// Start parses Simulation.StartDate. A zero time is returned when unset.
func (s Simulation) Start() (time.Time, error) { return parseDate(s.StartDate) }

// End parses Simulation.EndDate. A zero time is returned when unset.
func (s Simulation) End() (time.Time, error) { return parseDate(s.EndDate) }

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}
