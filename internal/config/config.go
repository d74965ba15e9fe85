package config

// Package config provides configuration management for the cost plane.
//
// Configuration sources (priority order, high to low):
//   1. Environment variables (COSTPLANE_* prefix)
//   2. YAML config file (default: costplane.yaml)
//   3. Built-in defaults
//
// The event-store client additionally reads the RUVECTOR_* environment
// variables directly (see the ruvector package); those names are part of
// the deployment contract and bypass the COSTPLANE_ prefix.

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all configuration fields.
type Config struct {
	// Server configuration (health and metrics endpoints only).
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	// Ingestion configuration.
	Ingestion struct {
		RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
		RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
		MaxBatchSize       int     `mapstructure:"max_batch_size"`
	} `mapstructure:"ingestion"`

	// DLQ configuration.
	Dlq struct {
		Enabled           bool          `mapstructure:"enabled"`
		BatchSize         int           `mapstructure:"batch_size"`
		MaxConcurrent     int64         `mapstructure:"max_concurrent"`
		MaxRetries        uint32        `mapstructure:"max_retries"`
		InitialRetryDelay time.Duration `mapstructure:"initial_retry_delay"`
		BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
		MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
		PollInterval      time.Duration `mapstructure:"poll_interval"`
		CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
		ItemTTL           time.Duration `mapstructure:"item_ttl"`
		SQLitePath        string        `mapstructure:"sqlite_path"`
	} `mapstructure:"dlq"`

	// Storage configuration.
	Storage struct {
		Type       string `mapstructure:"type"` // memory | sqlite
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	// Forecasting configuration.
	Forecasting struct {
		EnableAnomalyDetection bool    `mapstructure:"enable_anomaly_detection"`
		AnomalySensitivity     float64 `mapstructure:"anomaly_sensitivity"`
		MinDataPoints          int     `mapstructure:"min_data_points"`
		WindowSize             int     `mapstructure:"window_size"`
		SmoothingFactor        float64 `mapstructure:"smoothing_factor"`
	} `mapstructure:"forecasting"`

	// Governance configuration.
	Governance struct {
		MaxTokens           uint64        `mapstructure:"max_tokens"`
		MaxLatencyMs        uint64        `mapstructure:"max_latency_ms"`
		StrictBudgets       bool          `mapstructure:"strict_budgets"`
		EnableCostSignals   bool          `mapstructure:"enable_cost_signals"`
		EnablePolicySignals bool          `mapstructure:"enable_policy_signals"`
		EnableApprovals     bool          `mapstructure:"enable_approvals"`
		TenantID            string        `mapstructure:"tenant_id"`
		MonthlyBudget       string        `mapstructure:"monthly_budget"` // decimal string, "0" disables
		EvaluationInterval  time.Duration `mapstructure:"evaluation_interval"`
	} `mapstructure:"governance"`

	// Logging configuration.
	Logging struct {
		Level        string `mapstructure:"level"`
		AppLogPath   string `mapstructure:"app_log_path"`
		AuditLogPath string `mapstructure:"audit_log_path"`
		MaxSizeMB    int    `mapstructure:"max_size_mb"`
		MaxBackups   int    `mapstructure:"max_backups"`
		MaxAgeDays   int    `mapstructure:"max_age_days"`
		Compress     bool   `mapstructure:"compress"`
	} `mapstructure:"logging"`
}

// Load reads configuration from the given file (optional) with
// environment overrides applied on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COSTPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is not an error: defaults plus environment
	// overrides are a complete configuration.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Ingestion.RateLimitPerSecond <= 0 {
		return fmt.Errorf("ingestion.rate_limit_per_second must be positive")
	}
	if c.Ingestion.RateLimitBurst <= 0 {
		return fmt.Errorf("ingestion.rate_limit_burst must be positive")
	}
	if c.Dlq.BackoffMultiplier < 1 {
		return fmt.Errorf("dlq.backoff_multiplier must be at least 1")
	}
	if c.Dlq.InitialRetryDelay <= 0 || c.Dlq.MaxRetryDelay < c.Dlq.InitialRetryDelay {
		return fmt.Errorf("dlq retry delays misordered")
	}
	switch c.Storage.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.type %q unknown (memory|sqlite)", c.Storage.Type)
	}
	if c.Forecasting.SmoothingFactor < 0 || c.Forecasting.SmoothingFactor > 1 {
		return fmt.Errorf("forecasting.smoothing_factor outside [0,1]")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown", c.Logging.Level)
	}
	return nil
}
