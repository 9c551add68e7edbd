// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Dumps    DumpsConfig    `mapstructure:"dumps"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	DB       DBConfig       `mapstructure:"db"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig governs the detail API client.
type APIConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Token             string  `mapstructure:"token"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	BackoffInitialSec int     `mapstructure:"backoff_initial_seconds"`
	BackoffMaxSec     int     `mapstructure:"backoff_max_seconds"`
}

// DumpsConfig governs daily dump downloads.
type DumpsConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	CheckIntervalHours int    `mapstructure:"check_interval_hours"`
}

// PipelineConfig governs batch processing and state-machine policy.
type PipelineConfig struct {
	BatchSize           int `mapstructure:"batch_size"`
	MaxRetries          int `mapstructure:"max_retries"`
	CheckpointInterval  int `mapstructure:"checkpoint_interval"`
	StuckThresholdMin   int `mapstructure:"stuck_threshold_minutes"`
	StalenessDays       int `mapstructure:"staleness_days"`
	UpdateIntervalHours int `mapstructure:"update_interval_hours"`
	IdlePollMaxSec      int `mapstructure:"idle_poll_max_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// OpsConfig controls the operational HTTP endpoint.
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("api.requests_per_second", 29)
	v.SetDefault("api.burst", 29)
	v.SetDefault("api.timeout_seconds", 60)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("api.backoff_initial_seconds", 4)
	v.SetDefault("api.backoff_max_seconds", 10)
	v.SetDefault("dumps.base_url", "https://files.tmdb.org/p/exports")
	v.SetDefault("dumps.timeout_seconds", 300)
	v.SetDefault("dumps.check_interval_hours", 24)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.checkpoint_interval", 100)
	v.SetDefault("pipeline.stuck_threshold_minutes", 60)
	v.SetDefault("pipeline.staleness_days", 30)
	v.SetDefault("pipeline.update_interval_hours", 24)
	v.SetDefault("pipeline.idle_poll_max_seconds", 60)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required")
	}
	if c.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("api.requests_per_second must be > 0")
	}
	if c.API.MaxAttempts <= 0 {
		return fmt.Errorf("api.max_attempts must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Pipeline.MaxRetries <= 0 {
		return fmt.Errorf("pipeline.max_retries must be > 0")
	}
	if c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0")
	}
	return nil
}

// APITimeout returns the per-request timeout for detail fetches.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// DumpTimeout returns the timeout for one dump download.
func (c Config) DumpTimeout() time.Duration {
	return time.Duration(c.Dumps.TimeoutSeconds) * time.Second
}

// DumpInterval returns how often the daily dumps are checked.
func (c Config) DumpInterval() time.Duration {
	return time.Duration(c.Dumps.CheckIntervalHours) * time.Hour
}

// UpdateInterval returns how often the staleness re-check runs.
func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.Pipeline.UpdateIntervalHours) * time.Hour
}

// StuckThreshold returns how long a processing row may sit before recovery.
func (c Config) StuckThreshold() time.Duration {
	return time.Duration(c.Pipeline.StuckThresholdMin) * time.Minute
}

// Staleness returns the content freshness window for the re-check.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.Pipeline.StalenessDays) * 24 * time.Hour
}

// IdlePollMax returns the longest single sleep while idle.
func (c Config) IdlePollMax() time.Duration {
	return time.Duration(c.Pipeline.IdlePollMaxSec) * time.Second
}
