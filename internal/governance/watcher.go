package governance

import (
	"context"
	"sort"
	"time"

	"github.com/costplane/costplane/internal/aggregate"
	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/forecasting"
	"github.com/costplane/costplane/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CostSource lists cost records for evaluation windows; the storage
// CostRepository satisfies it.
type CostSource interface {
	ListAll(ctx context.Context) ([]domain.CostRecord, error)
}

// WatcherConfig tunes the periodic governance evaluation.
type WatcherConfig struct {
	TenantID          string
	MonthlyBudget     decimal.Decimal
	Interval          time.Duration
	EnableCostSignals bool
	AnomalyConfig     forecasting.AnomalyConfig
}

// Watcher periodically reduces the cost stream and emits advisory
// signals: budget thresholds against the configured monthly budget and
// cost-risk signals for anomalous daily spend. It only ever observes and
// emits; spend continues regardless of what it finds.
type Watcher struct {
	cfg     WatcherConfig
	costs   CostSource
	emitter *Emitter
	budget  *BudgetEnforcement
	log     *zap.Logger

	lastThreshold uint8
}

// NewWatcher builds a watcher.
func NewWatcher(cfg WatcherConfig, costs CostSource, emitter *Emitter, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.AnomalyConfig.Method == "" {
		cfg.AnomalyConfig = forecasting.DefaultAnomalyConfig()
	}
	return &Watcher{
		cfg:     cfg,
		costs:   costs,
		emitter: emitter,
		budget:  NewBudgetEnforcement(),
		log:     log,
	}
}

// Run evaluates on the configured interval until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Evaluate(ctx); err != nil {
				w.log.Error("governance evaluation failed", zap.Error(err))
			}
		}
	}
}

// Evaluate runs one governance pass.
func (w *Watcher) Evaluate(ctx context.Context) error {
	records, err := w.costs.ListAll(ctx)
	if err != nil {
		return err
	}
	ref := NewExecutionRef(uuid.New(), w.cfg.TenantID)

	if err := w.evaluateBudget(ctx, records, ref); err != nil {
		return err
	}
	if w.cfg.EnableCostSignals {
		if err := w.evaluateAnomalies(ctx, records, ref); err != nil {
			return err
		}
	}
	return nil
}

// evaluateBudget emits a threshold signal when a new rung is crossed.
// Emitting once per rung keeps the event store free of repeats while the
// spend sits inside one band.
func (w *Watcher) evaluateBudget(ctx context.Context, records []domain.CostRecord, ref ExecutionRef) error {
	if w.cfg.MonthlyBudget.IsZero() {
		return nil
	}
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	spend := aggregate.SumWindow(records, monthStart, now)

	signal := w.budget.Evaluate("monthly", spend, w.cfg.MonthlyBudget)
	if signal.ThresholdPercent == 0 || signal.ThresholdPercent == w.lastThreshold {
		return nil
	}

	inputs := map[string]string{
		"budget_id":     "monthly",
		"current_spend": spend.String(),
		"budget_limit":  w.cfg.MonthlyBudget.String(),
		"period_start":  monthStart.Format(time.RFC3339),
	}
	if _, err := w.emitter.EmitBudgetThreshold(ctx, signal, inputs, 1.0, ref); err != nil {
		return err
	}
	w.lastThreshold = signal.ThresholdPercent
	metrics.SignalsEmitted.WithLabelValues(
		string(DecisionBudgetSignal), signal.RiskLevel.String()).Inc()
	return nil
}

// evaluateAnomalies folds the cost stream into a daily spend series and
// emits a cost-risk signal for the most severe fresh anomaly.
func (w *Watcher) evaluateAnomalies(ctx context.Context, records []domain.CostRecord, ref ExecutionRef) error {
	series := dailySpendSeries(records)
	if series.Len() < w.cfg.AnomalyConfig.MinDataPoints {
		return nil
	}

	detector := forecasting.NewAnomalyDetector(w.cfg.AnomalyConfig)
	result, err := detector.Detect(series)
	if err != nil {
		return err
	}
	if len(result.Anomalies) == 0 {
		return nil
	}

	// Only the latest point matters for alerting; older anomalies were
	// either reported already or predate the watcher.
	last := result.Anomalies[len(result.Anomalies)-1]
	if last.Index != series.Len()-1 {
		return nil
	}
	metrics.AnomaliesDetected.WithLabelValues(
		string(last.Method), string(last.Severity)).Inc()

	baseline := meanDecimal(series.Values()[:last.Index])
	signal := NewCostRiskSignal(
		SpendForecasterAgent(), V1(),
		riskForSeverity(last.Severity), "cost_spike",
		last.Point.Value, baseline,
	).WithRecommendation("review recent usage growth against expected volume")

	inputs := map[string]string{
		"method":    string(last.Method),
		"timestamp": last.Point.Timestamp.Format(time.RFC3339),
		"observed":  last.Point.Value.String(),
		"baseline":  baseline.String(),
	}
	confidence := 0.7
	if last.Severity == forecasting.SeverityCritical {
		confidence = 0.9
	}
	_, err = w.emitter.EmitCostRisk(ctx, signal, inputs, confidence, ref)
	return err
}

func riskForSeverity(s forecasting.AnomalySeverity) RiskLevel {
	switch s {
	case forecasting.SeverityCritical:
		return RiskCritical
	case forecasting.SeverityHigh:
		return RiskHigh
	case forecasting.SeverityMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// dailySpendSeries buckets cost records into per-day totals.
func dailySpendSeries(records []domain.CostRecord) forecasting.TimeSeriesData {
	buckets := make(map[time.Time]decimal.Decimal)
	for _, r := range records {
		day := r.CalculatedAt.UTC().Truncate(24 * time.Hour)
		buckets[day] = buckets[day].Add(r.TotalCost)
	}
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	points := make([]forecasting.DataPoint, len(days))
	for i, day := range days {
		points[i] = forecasting.NewDataPoint(day, buckets[day])
	}
	return forecasting.NewTimeSeries(points, int64((24 * time.Hour).Seconds()))
}

func meanDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
