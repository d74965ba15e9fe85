package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cost plane metrics for production monitoring
var (
	// Ingestion metrics
	UsageRecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_usage_records_ingested_total",
			Help: "Total number of usage records accepted by the pipeline",
		},
		[]string{"provider", "source"},
	)

	UsageRecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_usage_records_rejected_total",
			Help: "Total number of usage records rejected at validation",
		},
		[]string{"reason"},
	)

	RateLimitThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_rate_limit_throttled_total",
			Help: "Total number of submissions throttled per organization",
		},
		[]string{"organization"},
	)

	// Cost calculation metrics
	CostCalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_cost_calculations_total",
			Help: "Total number of cost calculations",
		},
		[]string{"provider", "scheme", "status"},
	)

	CostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_cost_usd_total",
			Help: "Total calculated cost in USD",
		},
		[]string{"provider", "model"},
	)

	// DLQ metrics
	DlqItemsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_dlq_items_added_total",
			Help: "Total number of items diverted to the dead-letter queue",
		},
		[]string{"failure_reason"},
	)

	DlqDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "costplane_dlq_depth",
			Help: "Current number of DLQ items by status",
		},
		[]string{"status"},
	)

	DlqRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_dlq_retries_total",
			Help: "Total number of DLQ retry attempts",
		},
		[]string{"outcome"},
	)

	// Governance metrics
	SignalsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_governance_signals_total",
			Help: "Total number of governance signals emitted",
		},
		[]string{"decision_type", "risk_level"},
	)

	DecisionDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "costplane_decision_dispatch_duration_seconds",
			Help:    "DecisionEvent dispatch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"decision_type"},
	)

	// Event store client metrics
	EventStoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_event_store_requests_total",
			Help: "Total number of event store requests",
		},
		[]string{"endpoint", "status"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "costplane_circuit_breaker_state",
			Help: "Event store circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// Forecasting metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costplane_anomalies_detected_total",
			Help: "Total number of cost anomalies detected",
		},
		[]string{"method", "severity"},
	)
)
