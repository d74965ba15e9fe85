package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults seeds every key so partial config files stay valid.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8082)

	v.SetDefault("ingestion.rate_limit_per_second", 100.0)
	v.SetDefault("ingestion.rate_limit_burst", 200)
	v.SetDefault("ingestion.max_batch_size", 1000)

	v.SetDefault("dlq.enabled", true)
	v.SetDefault("dlq.batch_size", 50)
	v.SetDefault("dlq.max_concurrent", int64(10))
	v.SetDefault("dlq.max_retries", uint32(3))
	v.SetDefault("dlq.initial_retry_delay", 30*time.Second)
	v.SetDefault("dlq.backoff_multiplier", 2.0)
	v.SetDefault("dlq.max_retry_delay", time.Hour)
	v.SetDefault("dlq.poll_interval", 30*time.Second)
	v.SetDefault("dlq.cleanup_interval", time.Hour)
	v.SetDefault("dlq.item_ttl", 7*24*time.Hour)
	v.SetDefault("dlq.sqlite_path", "data/dlq.db")

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.sqlite_path", "data/costplane.db")

	v.SetDefault("forecasting.enable_anomaly_detection", true)
	v.SetDefault("forecasting.anomaly_sensitivity", 3.0)
	v.SetDefault("forecasting.min_data_points", 10)
	v.SetDefault("forecasting.window_size", 7)
	v.SetDefault("forecasting.smoothing_factor", 0.3)

	v.SetDefault("governance.max_tokens", uint64(1200))
	v.SetDefault("governance.max_latency_ms", uint64(2500))
	v.SetDefault("governance.strict_budgets", false)
	v.SetDefault("governance.enable_cost_signals", true)
	v.SetDefault("governance.enable_policy_signals", true)
	v.SetDefault("governance.enable_approvals", true)
	v.SetDefault("governance.tenant_id", "default")
	v.SetDefault("governance.monthly_budget", "0")
	v.SetDefault("governance.evaluation_interval", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.app_log_path", "logs/app.log")
	v.SetDefault("logging.audit_log_path", "logs/audit.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}
