package ruvector

// Package ruvector is the client for the external decision event store.
// The plane never writes decisions to an application database directly;
// every DecisionEvent is persisted through this client.

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the client settings. FromEnv reads the exact RUVECTOR_*
// environment variables used across deployments.
type Config struct {
	Endpoint                   string `json:"endpoint"`
	APIKey                     string `json:"api_key,omitempty"`
	TimeoutMs                  uint64 `json:"timeout_ms"`
	MaxRetries                 uint32 `json:"max_retries"`
	RetryDelayMs               uint64 `json:"retry_delay_ms"`
	CircuitBreakerThreshold    uint64 `json:"circuit_breaker_threshold"`
	CircuitBreakerResetSeconds uint64 `json:"circuit_breaker_reset_seconds"`
	EnableLogging              bool   `json:"enable_logging"`
}

// DefaultConfig mirrors the documented environment defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:                   "http://localhost:8080",
		TimeoutMs:                  5000,
		MaxRetries:                 3,
		RetryDelayMs:               100,
		CircuitBreakerThreshold:    5,
		CircuitBreakerResetSeconds: 30,
		EnableLogging:              true,
	}
}

// FromEnv loads configuration from the RUVECTOR_* environment variables,
// falling back to defaults for anything unset or unparsable.
func FromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("RUVECTOR_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("RUVECTOR_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v, err := strconv.ParseUint(os.Getenv("RUVECTOR_TIMEOUT_MS"), 10, 64); err == nil {
		cfg.TimeoutMs = v
	}
	if v, err := strconv.ParseUint(os.Getenv("RUVECTOR_MAX_RETRIES"), 10, 32); err == nil {
		cfg.MaxRetries = uint32(v)
	}
	if v, err := strconv.ParseUint(os.Getenv("RUVECTOR_RETRY_DELAY_MS"), 10, 64); err == nil {
		cfg.RetryDelayMs = v
	}
	if v, err := strconv.ParseUint(os.Getenv("RUVECTOR_CIRCUIT_BREAKER_THRESHOLD"), 10, 64); err == nil {
		cfg.CircuitBreakerThreshold = v
	}
	if v, err := strconv.ParseUint(os.Getenv("RUVECTOR_CIRCUIT_BREAKER_RESET_SECONDS"), 10, 64); err == nil {
		cfg.CircuitBreakerResetSeconds = v
	}
	if v := os.Getenv("RUVECTOR_ENABLE_LOGGING"); v != "" {
		cfg.EnableLogging = v == "true" || v == "1"
	}
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("ruvector: endpoint cannot be empty")
	}
	if c.TimeoutMs == 0 {
		return fmt.Errorf("ruvector: timeout_ms must be > 0")
	}
	return nil
}
