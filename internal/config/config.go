// Package config loads application configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the volume monitor.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Polygon   Polygon   `yaml:"polygon"`
	Email     Email     `yaml:"email"`
	Logging   Logging   `yaml:"logging"`
	Reconcile Reconcile `yaml:"reconcile"`
	Realtime  Realtime  `yaml:"realtime"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"` // daily event files (historical mode)
	LogDir    string `yaml:"log_dir"`
}

// Polygon holds credentials and request pacing for the Polygon.io API.
type Polygon struct {
	APIKey          string `yaml:"api_key"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Email configures SMTP notifications. When Enabled is false no mail is sent
// and notifications are logged instead.
type Email struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Reconcile controls the record reconciliation passes.
type Reconcile struct {
	// Workers overrides the worker-pool size when > 0; otherwise the pool is
	// sized NumCPU * IOFactor.
	Workers int `yaml:"workers"`
	// IOFactor multiplies the core count for the IO-bound fetch pool.
	IOFactor int `yaml:"io_factor"`
	// EarliestDate bounds full-history scans; the provider is paged to
	// exhaustion within [EarliestDate, target].
	EarliestDate string `yaml:"earliest_date"`
	// MaxSetupRounds caps consecutive setup passes when symbols keep failing.
	MaxSetupRounds int `yaml:"max_setup_rounds"`
}

// Realtime controls the intraday monitoring loop.
type Realtime struct {
	CheckIntervalMin int `yaml:"check_interval_min"`
	HeartbeatSec     int `yaml:"heartbeat_sec"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path, applies environment
// variable overrides, and fills defaults. A missing file is not an error:
// the configuration can be supplied entirely through the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Env-only configuration.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HVE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("HVE_OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("HVE_LOG_DIR"); v != "" {
		cfg.Storage.LogDir = v
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Email.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.Password = v
		cfg.Email.Enabled = true
	}
	if v := os.Getenv("HVE_EMAIL_TO"); v != "" {
		cfg.Email.To = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "hve.db"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "."
	}
	if cfg.Polygon.RateLimitPerMin == 0 {
		cfg.Polygon.RateLimitPerMin = 600
	}
	if cfg.Polygon.MaxRetries == 0 {
		cfg.Polygon.MaxRetries = 3
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.Username
	}
	if cfg.Email.To == "" {
		cfg.Email.To = cfg.Email.From
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Reconcile.IOFactor == 0 {
		cfg.Reconcile.IOFactor = 4
	}
	if cfg.Reconcile.EarliestDate == "" {
		cfg.Reconcile.EarliestDate = "1980-01-01"
	}
	if cfg.Reconcile.MaxSetupRounds == 0 {
		cfg.Reconcile.MaxSetupRounds = 3
	}
	if cfg.Realtime.CheckIntervalMin == 0 {
		cfg.Realtime.CheckIntervalMin = 30
	}
	if cfg.Realtime.HeartbeatSec == 0 {
		cfg.Realtime.HeartbeatSec = 60
	}
}
