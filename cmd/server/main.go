package main

// Package main is the entry point for the costplane server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Construct the ingestion pipeline: catalog → calculator → repositories
//   - Start the DLQ processor with its cleanup task
//   - Connect the governance emitter to the ruvector event store
//   - Serve /health and /metrics
//   - Graceful shutdown with context cancellation

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/costplane/costplane/internal/audit"
	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/dlq"
	"github.com/costplane/costplane/internal/engine"
	"github.com/costplane/costplane/internal/governance"
	"github.com/costplane/costplane/internal/ingestion"
	"github.com/costplane/costplane/internal/ruvector"
	"github.com/costplane/costplane/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const version = "0.1.0"

var (
	configPath = flag.String("config", "costplane.yaml", "Path to configuration file")
	port       = flag.Int("port", 0, "Server port (overrides config)")
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	EventBus  string `json:"event_store"`
	Timestamp string `json:"timestamp"`
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: init logging: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()
	log := auditLog.App()

	log.Info("starting costplane",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Type))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage.
	var repos storage.Repositories
	switch cfg.Storage.Type {
	case "sqlite":
		backend, err := storage.NewSQLiteBackend(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatal("open storage backend", zap.Error(err))
		}
		defer backend.Close()
		repos = backend.Repositories()
	default:
		repos = storage.NewMemoryRepositories(nil)
	}

	// DLQ store.
	var dlqStore dlq.Store
	if cfg.Storage.Type == "sqlite" {
		sqliteDlq, err := dlq.NewSQLiteStore(cfg.Dlq.SQLitePath)
		if err != nil {
			log.Fatal("open dlq store", zap.Error(err))
		}
		defer sqliteDlq.Close()
		dlqStore = sqliteDlq
	} else {
		dlqStore = dlq.NewMemoryStore()
	}

	// Ingestion pipeline.
	limiter := ingestion.NewOrgRateLimiter(
		cfg.Ingestion.RateLimitPerSecond, cfg.Ingestion.RateLimitBurst)
	defer limiter.Stop()

	pipeline := ingestion.NewPipeline(
		ingestion.Config{MaxRetries: cfg.Dlq.MaxRetries, DlqTTL: cfg.Dlq.ItemTTL},
		engine.NewCalculator(log), repos, dlqStore, limiter, log).
		WithAuditTrail(auditLog)

	// DLQ processor replaying diverted usage records.
	processor := dlq.NewProcessor(dlqStore, pipeline.ReprocessHandler(), dlq.ProcessorConfig{
		Enabled:       cfg.Dlq.Enabled,
		BatchSize:     cfg.Dlq.BatchSize,
		MaxConcurrent: cfg.Dlq.MaxConcurrent,
		PollInterval:  cfg.Dlq.PollInterval,
		CleanupEvery:  cfg.Dlq.CleanupInterval,
		Policy: dlq.ExponentialPolicy(cfg.Dlq.MaxRetries, cfg.Dlq.InitialRetryDelay,
			cfg.Dlq.BackoffMultiplier, cfg.Dlq.MaxRetryDelay),
	}, log)
	go processor.Run(ctx)

	// Event store client and governance emitter.
	eventClient, err := ruvector.FromEnvClient(log)
	if err != nil {
		log.Fatal("init event store client", zap.Error(err))
	}
	budget := governance.NewPerformanceBudget(
		cfg.Governance.MaxTokens, cfg.Governance.MaxLatencyMs).
		WithStrict(cfg.Governance.StrictBudgets)
	emitter := governance.NewEmitter(eventClient, log).
		WithPerformanceBudget(budget).
		WithDecisionTrail(auditLog)

	monthlyBudget, err := decimal.NewFromString(cfg.Governance.MonthlyBudget)
	if err != nil {
		log.Fatal("parse governance.monthly_budget", zap.Error(err))
	}
	watcher := governance.NewWatcher(governance.WatcherConfig{
		TenantID:          cfg.Governance.TenantID,
		MonthlyBudget:     monthlyBudget,
		Interval:          cfg.Governance.EvaluationInterval,
		EnableCostSignals: cfg.Governance.EnableCostSignals,
	}, repos.Costs, emitter, log)
	go watcher.Run(ctx)

	// HTTP surface: health and metrics only; ingestion arrives over the
	// telemetry consumer, not an HTTP API.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		eventStore := "unknown"
		probe, probeCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer probeCancel()
		if healthy, err := eventClient.HealthCheck(probe); err == nil {
			if healthy {
				eventStore = "healthy"
			} else {
				eventStore = "unhealthy"
			}
		} else {
			eventStore = "unreachable"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:    status,
			Version:   version,
			EventBus:  eventStore,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Info("http listener up", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http listener failed", zap.Error(err))
		}
	}()

	// Await shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	auditLog.Sync()
}
