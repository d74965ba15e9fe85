package analyticshub

// Package analyticshub consumes aggregated usage baselines, historical
// curves, and forecasting clusters from the analytics hub and converts
// them into the plane's forecasting types.

import (
	"time"

	"github.com/costplane/costplane/internal/forecasting"
	"github.com/shopspring/decimal"
)

// Config tunes the consumer.
type Config struct {
	Enabled                   bool   `json:"enabled"`
	Endpoint                  string `json:"endpoint,omitempty"`
	DefaultBaselineWindowDays int    `json:"default_baseline_window_days"`
	MinDataPoints             int    `json:"min_data_points"`
	ApplySeasonalAdjustments  bool   `json:"apply_seasonal_adjustments"`
	CacheTTLSeconds           int    `json:"cache_ttl_seconds"`
}

// DefaultConfig returns the standard consumer settings.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		DefaultBaselineWindowDays: 30,
		MinDataPoints:             7,
		ApplySeasonalAdjustments:  true,
		CacheTTLSeconds:           3600,
	}
}

// UsageBaseline is the hub's aggregate statistics artefact.
type UsageBaseline struct {
	BaselineID     string    `json:"baseline_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Granularity    string    `json:"granularity"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`

	MeanTokensPerPeriod float64         `json:"mean_tokens_per_period"`
	StdDevTokens        float64         `json:"std_dev_tokens"`
	MeanCostPerPeriod   decimal.Decimal `json:"mean_cost_per_period"`
	StdDevCost          float64         `json:"std_dev_cost"`

	P50Tokens uint64          `json:"p50_tokens"`
	P90Tokens uint64          `json:"p90_tokens"`
	P99Tokens uint64          `json:"p99_tokens"`
	P50Cost   decimal.Decimal `json:"p50_cost"`
	P90Cost   decimal.Decimal `json:"p90_cost"`
	P99Cost   decimal.Decimal `json:"p99_cost"`

	TrendDirection      string `json:"trend_direction"`
	SeasonalityDetected bool   `json:"seasonality_detected"`
	SeasonalityPeriod   string `json:"seasonality_period,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// CurveDataPoint is one observation of a historical curve.
type CurveDataPoint struct {
	Timestamp  time.Time        `json:"timestamp"`
	Value      decimal.Decimal  `json:"value"`
	UpperBound *decimal.Decimal `json:"upper_bound,omitempty"`
	LowerBound *decimal.Decimal `json:"lower_bound,omitempty"`
}

// HistoricalCurve is the hub's timestamped value series artefact.
type HistoricalCurve struct {
	CurveID         string           `json:"curve_id"`
	MetricName      string           `json:"metric_name"`
	Points          []CurveDataPoint `json:"points"`
	ConfidenceLevel float64          `json:"confidence_level"`
	IntervalSecs    int64            `json:"interval_secs,omitempty"`
}

// ForecastingCluster is the hub's usage-pattern cluster artefact.
type ForecastingCluster struct {
	ClusterID          string    `json:"cluster_id"`
	Centroid           []float64 `json:"centroid"`
	HourlyDistribution []float64 `json:"hourly_distribution"`
	DailyDistribution  []float64 `json:"daily_distribution"`
	GrowthRate         float64   `json:"growth_rate"`
	SilhouetteScore    float64   `json:"silhouette_score"`
	MemberCount        int       `json:"member_count"`
}

// Consumer converts hub artefacts into forecasting inputs.
type Consumer struct {
	cfg Config
}

// NewConsumer builds a consumer.
func NewConsumer(cfg Config) *Consumer {
	return &Consumer{cfg: cfg}
}

// NewDefaultConsumer uses DefaultConfig.
func NewDefaultConsumer() *Consumer {
	return &Consumer{cfg: DefaultConfig()}
}

// IsEnabled reports whether the integration is on.
func (c *Consumer) IsEnabled() bool { return c.cfg.Enabled }

// BaselineToForecastConfig derives run parameters from a baseline. The
// seasonality period mapping follows the baseline's granularity cycle:
// hourly patterns repeat across 24 samples, daily across 7, weekly across
// 4, monthly across 12.
func (c *Consumer) BaselineToForecastConfig(baseline UsageBaseline) forecasting.ForecastConfig {
	cfg := forecasting.DefaultForecastConfig()
	cfg.Seasonality = c.BaselineSeasonality(baseline)
	if period := cfg.Seasonality.Period(); period > 0 {
		cfg.WindowSize = period
	}
	return cfg
}

// BaselineTrend converts the hub's trend string.
func (c *Consumer) BaselineTrend(baseline UsageBaseline) forecasting.TrendDirection {
	switch baseline.TrendDirection {
	case "increasing", "up":
		return forecasting.TrendIncreasing
	case "decreasing", "down":
		return forecasting.TrendDecreasing
	case "stable", "flat":
		return forecasting.TrendStable
	default:
		return forecasting.TrendUnknown
	}
}

// BaselineSeasonality converts the hub's seasonality tag.
func (c *Consumer) BaselineSeasonality(baseline UsageBaseline) forecasting.SeasonalityPattern {
	if !baseline.SeasonalityDetected || !c.cfg.ApplySeasonalAdjustments {
		return forecasting.SeasonalityNone
	}
	switch baseline.SeasonalityPeriod {
	case "hourly":
		return forecasting.SeasonalityHourly
	case "daily":
		return forecasting.SeasonalityDaily
	case "weekly":
		return forecasting.SeasonalityWeekly
	case "monthly":
		return forecasting.SeasonalityMonthly
	default:
		return forecasting.SeasonalityNone
	}
}

// CurveToTimeSeries converts a historical curve into a time series.
func (c *Consumer) CurveToTimeSeries(curve HistoricalCurve) (forecasting.TimeSeriesData, error) {
	if len(curve.Points) < c.cfg.MinDataPoints {
		return forecasting.TimeSeriesData{}, &forecasting.InsufficientDataError{
			Needed: c.cfg.MinDataPoints, Got: len(curve.Points), What: "historical curve",
		}
	}
	points := make([]forecasting.DataPoint, len(curve.Points))
	for i, p := range curve.Points {
		points[i] = forecasting.NewDataPoint(p.Timestamp, p.Value)
	}
	if curve.IntervalSecs > 0 {
		return forecasting.NewTimeSeries(points, curve.IntervalSecs), nil
	}
	return forecasting.WithAutoInterval(points), nil
}

// CurveBoundsToForecast converts a curve with bound columns into a
// confidence-interval forecast. Points without bounds reuse the value.
func (c *Consumer) CurveBoundsToForecast(curve HistoricalCurve) (forecasting.ForecastWithConfidence, error) {
	base, err := c.CurveToTimeSeries(curve)
	if err != nil {
		return forecasting.ForecastWithConfidence{}, err
	}
	upper := make([]forecasting.DataPoint, len(curve.Points))
	lower := make([]forecasting.DataPoint, len(curve.Points))
	for i, p := range curve.Points {
		up, low := p.Value, p.Value
		if p.UpperBound != nil {
			up = *p.UpperBound
		}
		if p.LowerBound != nil {
			low = *p.LowerBound
		}
		upper[i] = forecasting.NewDataPoint(p.Timestamp, up)
		lower[i] = forecasting.NewDataPoint(p.Timestamp, low)
	}
	return forecasting.ForecastWithConfidence{
		Forecast:        base,
		Upper:           forecasting.NewTimeSeries(upper, base.IntervalSecs),
		Lower:           forecasting.NewTimeSeries(lower, base.IntervalSecs),
		ConfidenceLevel: curve.ConfidenceLevel,
	}, nil
}

// MatchCluster returns the cluster whose centroid is closest to the
// observed usage vector, or nil when none qualifies. Clusters with a poor
// silhouette score are skipped: a weak clustering is worse than none.
func (c *Consumer) MatchCluster(clusters []ForecastingCluster, observed []float64) *ForecastingCluster {
	var best *ForecastingCluster
	bestDist := 0.0
	for i := range clusters {
		cluster := &clusters[i]
		if cluster.SilhouetteScore < 0.25 || len(cluster.Centroid) != len(observed) {
			continue
		}
		dist := 0.0
		for j, v := range observed {
			d := v - cluster.Centroid[j]
			dist += d * d
		}
		if best == nil || dist < bestDist {
			best = cluster
			bestDist = dist
		}
	}
	return best
}

// ClusterSeasonalFactors returns the distribution matching the pattern:
// the hourly histogram for hourly patterns, the daily one otherwise.
func (c *Consumer) ClusterSeasonalFactors(cluster ForecastingCluster, pattern forecasting.SeasonalityPattern) []float64 {
	if pattern == forecasting.SeasonalityHourly {
		return cluster.HourlyDistribution
	}
	return cluster.DailyDistribution
}

// ApplyClusterGrowth scales a forecast series by the cluster's growth
// rate, compounding per period.
func (c *Consumer) ApplyClusterGrowth(series forecasting.TimeSeriesData, cluster ForecastingCluster) forecasting.TimeSeriesData {
	if cluster.GrowthRate == 0 {
		return series
	}
	factor := decimal.NewFromFloat(1 + cluster.GrowthRate)
	out := make([]forecasting.DataPoint, len(series.Points))
	scale := decimal.NewFromInt(1)
	for i, p := range series.Points {
		scale = scale.Mul(factor)
		out[i] = forecasting.NewDataPoint(p.Timestamp, p.Value.Mul(scale))
	}
	return forecasting.NewTimeSeries(out, series.IntervalSecs)
}
