package analyticshub

import (
	"errors"
	"testing"
	"time"

	"github.com/costplane/costplane/internal/forecasting"
	"github.com/shopspring/decimal"
)

func testBaseline() UsageBaseline {
	now := time.Now().UTC()
	return UsageBaseline{
		BaselineID:          "bl-1",
		StartTime:           now.Add(-30 * 24 * time.Hour),
		EndTime:             now,
		Granularity:         "daily",
		MeanTokensPerPeriod: 120000,
		MeanCostPerPeriod:   decimal.RequireFromString("4.20"),
		TrendDirection:      "increasing",
		SeasonalityDetected: true,
		SeasonalityPeriod:   "daily",
		ComputedAt:          now,
	}
}

func testCurve(n int) HistoricalCurve {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]CurveDataPoint, n)
	for i := range points {
		up := decimal.NewFromInt(int64(10 + i + 2))
		low := decimal.NewFromInt(int64(10 + i - 2))
		points[i] = CurveDataPoint{
			Timestamp:  start.Add(time.Duration(i) * time.Hour),
			Value:      decimal.NewFromInt(int64(10 + i)),
			UpperBound: &up,
			LowerBound: &low,
		}
	}
	return HistoricalCurve{
		CurveID: "c-1", MetricName: "daily_spend",
		Points: points, ConfidenceLevel: 0.95,
	}
}

func TestBaselineToForecastConfig_SeasonalityMapping(t *testing.T) {
	consumer := NewDefaultConsumer()
	cases := map[string]int{
		"hourly":  24,
		"daily":   7,
		"weekly":  4,
		"monthly": 12,
	}
	for period, window := range cases {
		baseline := testBaseline()
		baseline.SeasonalityPeriod = period
		cfg := consumer.BaselineToForecastConfig(baseline)
		if cfg.WindowSize != window {
			t.Errorf("period %s → window %d, want %d", period, cfg.WindowSize, window)
		}
	}

	// Undetected seasonality collapses to none.
	baseline := testBaseline()
	baseline.SeasonalityDetected = false
	cfg := consumer.BaselineToForecastConfig(baseline)
	if cfg.Seasonality != forecasting.SeasonalityNone {
		t.Error("undetected seasonality must map to none")
	}
}

func TestBaselineTrend(t *testing.T) {
	consumer := NewDefaultConsumer()
	cases := map[string]forecasting.TrendDirection{
		"increasing": forecasting.TrendIncreasing,
		"down":       forecasting.TrendDecreasing,
		"stable":     forecasting.TrendStable,
		"sideways":   forecasting.TrendUnknown,
	}
	for in, want := range cases {
		baseline := testBaseline()
		baseline.TrendDirection = in
		if got := consumer.BaselineTrend(baseline); got != want {
			t.Errorf("trend %q = %s, want %s", in, got, want)
		}
	}
}

func TestCurveToTimeSeries(t *testing.T) {
	consumer := NewDefaultConsumer()
	ts, err := consumer.CurveToTimeSeries(testCurve(10))
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if ts.Len() != 10 {
		t.Errorf("series length = %d, want 10", ts.Len())
	}
	if ts.IntervalSecs != 3600 {
		t.Errorf("interval = %d, want auto-detected 3600", ts.IntervalSecs)
	}

	var insufficient *forecasting.InsufficientDataError
	if _, err := consumer.CurveToTimeSeries(testCurve(3)); !errors.As(err, &insufficient) {
		t.Fatalf("short curve should fail with InsufficientDataError, got %v", err)
	}
}

func TestCurveBoundsToForecast(t *testing.T) {
	consumer := NewDefaultConsumer()
	fc, err := consumer.CurveBoundsToForecast(testCurve(10))
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if fc.ConfidenceLevel != 0.95 {
		t.Errorf("confidence = %f, want 0.95", fc.ConfidenceLevel)
	}
	if fc.Upper.IntervalSecs != fc.Forecast.IntervalSecs ||
		fc.Lower.IntervalSecs != fc.Forecast.IntervalSecs {
		t.Error("bound series must share the sampling interval")
	}
	for i := range fc.Forecast.Points {
		if fc.Upper.Points[i].Value.LessThan(fc.Forecast.Points[i].Value) {
			t.Errorf("upper bound below value at %d", i)
		}
	}
}

func TestMatchCluster(t *testing.T) {
	consumer := NewDefaultConsumer()
	clusters := []ForecastingCluster{
		{ClusterID: "noisy", Centroid: []float64{1, 1}, SilhouetteScore: 0.1},
		{ClusterID: "near", Centroid: []float64{10, 10}, SilhouetteScore: 0.8},
		{ClusterID: "far", Centroid: []float64{100, 100}, SilhouetteScore: 0.9},
	}

	got := consumer.MatchCluster(clusters, []float64{11, 9})
	if got == nil || got.ClusterID != "near" {
		t.Fatalf("expected the near cluster, got %+v", got)
	}

	// A low silhouette score disqualifies even the closest cluster.
	if match := consumer.MatchCluster(clusters[:1], []float64{1, 1}); match != nil {
		t.Error("weak clusterings must not match")
	}
	// Dimension mismatch disqualifies.
	if match := consumer.MatchCluster(clusters, []float64{1}); match != nil {
		t.Error("mismatched centroid dimensions must not match")
	}
}

func TestApplyClusterGrowth(t *testing.T) {
	consumer := NewDefaultConsumer()
	start := time.Now().UTC()
	series := forecasting.NewTimeSeries([]forecasting.DataPoint{
		forecasting.NewDataPoint(start, decimal.NewFromInt(100)),
		forecasting.NewDataPoint(start.Add(time.Hour), decimal.NewFromInt(100)),
	}, 3600)

	grown := consumer.ApplyClusterGrowth(series, ForecastingCluster{GrowthRate: 0.1})
	if !grown.Points[0].Value.Equal(decimal.RequireFromString("110")) {
		t.Errorf("first period = %s, want 110", grown.Points[0].Value)
	}
	if !grown.Points[1].Value.Round(6).Equal(decimal.RequireFromString("121")) {
		t.Errorf("second period = %s, want 121 (compounded)", grown.Points[1].Value)
	}

	flat := consumer.ApplyClusterGrowth(series, ForecastingCluster{GrowthRate: 0})
	if !flat.Points[0].Value.Equal(decimal.NewFromInt(100)) {
		t.Error("zero growth must leave the series unchanged")
	}
}
