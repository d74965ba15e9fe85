package forecasting

// Package forecasting projects spend trends and flags cost anomalies.
//
// Responsibilities:
//   - Time-series container with auto-detected sampling interval
//   - Interchangeable forecast models (linear trend, moving average,
//     exponential smoothing) behind a single interface
//   - Statistical anomaly detection (Z-score, IQR, moving window,
//     modified Z-score)
//
// Point values stay decimal on the way in and out; the statistics
// themselves run on float64, where estimation semantics dominate exactness.

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataPoint is one observation in a time series.
type DataPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// NewDataPoint builds a point.
func NewDataPoint(ts time.Time, value decimal.Decimal) DataPoint {
	return DataPoint{Timestamp: ts, Value: value}
}

// TimeSeriesData is an ordered sequence of points with a sampling interval.
// IntervalSecs is zero when it could not be detected.
type TimeSeriesData struct {
	Points       []DataPoint `json:"points"`
	IntervalSecs int64       `json:"interval_secs,omitempty"`
}

// NewTimeSeries builds a series with an explicit sampling interval.
func NewTimeSeries(points []DataPoint, intervalSecs int64) TimeSeriesData {
	return TimeSeriesData{Points: points, IntervalSecs: intervalSecs}
}

// WithAutoInterval builds a series and infers the interval from the gap
// between the first two points.
func WithAutoInterval(points []DataPoint) TimeSeriesData {
	ts := TimeSeriesData{Points: points}
	if len(points) >= 2 {
		ts.IntervalSecs = int64(points[1].Timestamp.Sub(points[0].Timestamp).Seconds())
	}
	return ts
}

// Len returns the number of points.
func (t TimeSeriesData) Len() int { return len(t.Points) }

// IsEmpty reports whether the series has no points.
func (t TimeSeriesData) IsEmpty() bool { return len(t.Points) == 0 }

// Last returns the final point, or false for an empty series.
func (t TimeSeriesData) Last() (DataPoint, bool) {
	if len(t.Points) == 0 {
		return DataPoint{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// Values returns the decimal values in order.
func (t TimeSeriesData) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Value
	}
	return out
}

// ValuesF64 returns the values as float64 for statistical work.
func (t TimeSeriesData) ValuesF64() []float64 {
	out := make([]float64, len(t.Points))
	for i, p := range t.Points {
		out[i], _ = p.Value.Float64()
	}
	return out
}

// Interval returns the sampling interval, defaulting to one hour.
func (t TimeSeriesData) Interval() time.Duration {
	if t.IntervalSecs <= 0 {
		return time.Hour
	}
	return time.Duration(t.IntervalSecs) * time.Second
}

// TrendDirection classifies the slope of a series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendUnknown    TrendDirection = "unknown"
)

// SeasonalityPattern names the detected cycle of a usage baseline.
type SeasonalityPattern string

const (
	SeasonalityNone    SeasonalityPattern = "none"
	SeasonalityHourly  SeasonalityPattern = "hourly"
	SeasonalityDaily   SeasonalityPattern = "daily"
	SeasonalityWeekly  SeasonalityPattern = "weekly"
	SeasonalityMonthly SeasonalityPattern = "monthly"
)

// Period returns the number of observations per seasonal cycle: hourly
// patterns repeat across 24 samples, daily across 7, weekly across 4,
// monthly across 12.
func (s SeasonalityPattern) Period() int {
	switch s {
	case SeasonalityHourly:
		return 24
	case SeasonalityDaily:
		return 7
	case SeasonalityWeekly:
		return 4
	case SeasonalityMonthly:
		return 12
	}
	return 0
}

// ForecastHorizon is how far ahead a forecast extends, in periods.
type ForecastHorizon int

// ForecastConfig parameterizes a model run.
type ForecastConfig struct {
	Horizon         ForecastHorizon    `json:"horizon"`
	WindowSize      int                `json:"window_size"`
	SmoothingFactor float64            `json:"smoothing_factor"`
	Seasonality     SeasonalityPattern `json:"seasonality"`
	ConfidenceLevel float64            `json:"confidence_level"`
}

// DefaultForecastConfig returns the standard run parameters.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Horizon:         7,
		WindowSize:      7,
		SmoothingFactor: 0.3,
		Seasonality:     SeasonalityNone,
		ConfidenceLevel: 0.95,
	}
}

// ForecastWithConfidence pairs a point forecast with upper and lower bound
// series sharing the same sampling interval.
type ForecastWithConfidence struct {
	Forecast        TimeSeriesData `json:"forecast"`
	Upper           TimeSeriesData `json:"upper"`
	Lower           TimeSeriesData `json:"lower"`
	ConfidenceLevel float64        `json:"confidence_level"`
}

// GenerateForecastPoints stamps forecast values onto the timestamps that
// extend the series past its last observation.
func GenerateForecastPoints(lastTimestamp time.Time, interval time.Duration, values []decimal.Decimal) []DataPoint {
	out := make([]DataPoint, len(values))
	for i, v := range values {
		out[i] = DataPoint{
			Timestamp: lastTimestamp.Add(time.Duration(i+1) * interval),
			Value:     v,
		}
	}
	return out
}
