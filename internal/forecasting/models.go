package forecasting

import (
	"math"

	"github.com/shopspring/decimal"
)

// Model is the common surface of the interchangeable forecast models.
type Model interface {
	// Name identifies the model for reporting.
	Name() string

	// Train fits the model to a series.
	Train(data TimeSeriesData) error

	// Forecast extends the series by n periods. Forecasts are clamped at
	// zero: negative spend does not exist.
	Forecast(n int) ([]decimal.Decimal, error)

	// DetectTrend classifies the fitted series' direction.
	DetectTrend() TrendDirection
}

// ─── Linear trend ─────────────────────────────────────────────────────────────

// LinearTrendModel fits an ordinary-least-squares line over index → value.
type LinearTrendModel struct {
	slope     float64
	intercept float64
	n         int
	trained   bool
}

// NewLinearTrendModel creates an untrained linear model.
func NewLinearTrendModel() *LinearTrendModel { return &LinearTrendModel{} }

func (m *LinearTrendModel) Name() string { return "linear_trend" }

func (m *LinearTrendModel) Train(data TimeSeriesData) error {
	if data.Len() < 2 {
		return &InsufficientDataError{Needed: 2, Got: data.Len(), What: "linear trend"}
	}
	values := data.ValuesF64()
	m.slope, m.intercept = regression(values)
	m.n = len(values)
	m.trained = true
	return nil
}

func (m *LinearTrendModel) Forecast(n int) ([]decimal.Decimal, error) {
	if !m.trained {
		return nil, &ModelError{Message: "linear trend model is not trained"}
	}
	out := make([]decimal.Decimal, 0, n)
	for i := 1; i <= n; i++ {
		v := m.slope*float64(m.n-1+i) + m.intercept
		out = append(out, fromFloatClamped(v))
	}
	return out, nil
}

func (m *LinearTrendModel) DetectTrend() TrendDirection {
	if !m.trained {
		return TrendUnknown
	}
	switch {
	case m.slope > 0.01:
		return TrendIncreasing
	case m.slope < -0.01:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// regression computes OLS slope and intercept over index → value.
func regression(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// ─── Moving average ───────────────────────────────────────────────────────────

// MovingAverageModel forecasts by iteratively averaging the trailing
// window, appending each prediction before computing the next.
type MovingAverageModel struct {
	windowSize int
	values     []decimal.Decimal
}

// NewMovingAverageModel creates a model with a fixed window size.
func NewMovingAverageModel(windowSize int) *MovingAverageModel {
	return &MovingAverageModel{windowSize: windowSize}
}

func (m *MovingAverageModel) Name() string { return "moving_average" }

func (m *MovingAverageModel) Train(data TimeSeriesData) error {
	if m.windowSize < 1 {
		return &ConfigError{Message: "moving average window must be positive"}
	}
	if data.Len() < m.windowSize {
		return &InsufficientDataError{Needed: m.windowSize, Got: data.Len(), What: "moving average"}
	}
	m.values = data.Values()
	return nil
}

func (m *MovingAverageModel) Forecast(n int) ([]decimal.Decimal, error) {
	if len(m.values) == 0 {
		return nil, &ModelError{Message: "moving average model is not trained"}
	}
	extended := make([]decimal.Decimal, len(m.values), len(m.values)+n)
	copy(extended, m.values)

	out := make([]decimal.Decimal, 0, n)
	for i := 0; i < n; i++ {
		start := len(extended) - m.windowSize
		if start < 0 {
			start = 0
		}
		window := extended[start:]
		sum := decimal.Zero
		for _, v := range window {
			sum = sum.Add(v)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(window))))
		if avg.Sign() < 0 {
			avg = decimal.Zero
		}
		out = append(out, avg)
		extended = append(extended, avg)
	}
	return out, nil
}

func (m *MovingAverageModel) DetectTrend() TrendDirection {
	if len(m.values) < 2 {
		return TrendUnknown
	}
	mid := len(m.values) / 2
	firstHalf := meanDecimal(m.values[:mid])
	secondHalf := meanDecimal(m.values[mid:])

	// 1% dead zone around the first-half mean.
	up := firstHalf.Mul(decimal.RequireFromString("1.01"))
	down := firstHalf.Mul(decimal.RequireFromString("0.99"))
	switch {
	case secondHalf.GreaterThan(up):
		return TrendIncreasing
	case secondHalf.LessThan(down):
		return TrendDecreasing
	default:
		return TrendStable
	}
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

// ─── Exponential smoothing ────────────────────────────────────────────────────

// ExponentialSmoothingModel carries a single smoothing factor and produces
// a constant forecast equal to the last smoothed level.
type ExponentialSmoothingModel struct {
	alpha    float64
	smoothed float64
	trained  bool
}

// NewExponentialSmoothingModel creates a model with α in [0,1].
func NewExponentialSmoothingModel(alpha float64) (*ExponentialSmoothingModel, error) {
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		return nil, &ConfigError{Message: "smoothing factor must be between 0 and 1"}
	}
	return &ExponentialSmoothingModel{alpha: alpha}, nil
}

// NewDefaultExponentialSmoothing uses α = 0.3.
func NewDefaultExponentialSmoothing() *ExponentialSmoothingModel {
	return &ExponentialSmoothingModel{alpha: 0.3}
}

func (m *ExponentialSmoothingModel) Name() string { return "exponential_smoothing" }

func (m *ExponentialSmoothingModel) Train(data TimeSeriesData) error {
	if data.IsEmpty() {
		return &InsufficientDataError{Needed: 1, Got: 0, What: "exponential smoothing"}
	}
	values := data.ValuesF64()
	smoothed := values[0]
	for _, v := range values[1:] {
		smoothed = m.alpha*v + (1-m.alpha)*smoothed
	}
	m.smoothed = smoothed
	m.trained = true
	return nil
}

func (m *ExponentialSmoothingModel) Forecast(n int) ([]decimal.Decimal, error) {
	if !m.trained {
		return nil, &ModelError{Message: "exponential smoothing model is not trained"}
	}
	level := fromFloatClamped(m.smoothed)
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = level
	}
	return out, nil
}

func (m *ExponentialSmoothingModel) DetectTrend() TrendDirection {
	if !m.trained {
		return TrendUnknown
	}
	// A single smoothed level carries no slope information.
	return TrendStable
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// ForecastSeries runs a trained model and stamps its predictions onto
// timestamps extending the input series.
func ForecastSeries(m Model, data TimeSeriesData, n int) (TimeSeriesData, error) {
	values, err := m.Forecast(n)
	if err != nil {
		return TimeSeriesData{}, err
	}
	last, ok := data.Last()
	if !ok {
		return TimeSeriesData{}, &InsufficientDataError{Needed: 1, Got: 0, What: "forecast series"}
	}
	points := GenerateForecastPoints(last.Timestamp, data.Interval(), values)
	return NewTimeSeries(points, data.IntervalSecs), nil
}

// ForecastWithBounds widens a point forecast into confidence bounds using
// the population standard deviation of the training series' values.
func ForecastWithBounds(m Model, data TimeSeriesData, n int, confidenceLevel float64) (ForecastWithConfidence, error) {
	forecast, err := ForecastSeries(m, data, n)
	if err != nil {
		return ForecastWithConfidence{}, err
	}

	sigma := stdDev(data.ValuesF64())
	z := 1.96
	if confidenceLevel > 0 && confidenceLevel < 0.95 {
		z = 1.645
	}
	margin := fromFloatClamped(z * sigma)

	upper := make([]DataPoint, len(forecast.Points))
	lower := make([]DataPoint, len(forecast.Points))
	for i, p := range forecast.Points {
		upper[i] = DataPoint{Timestamp: p.Timestamp, Value: p.Value.Add(margin)}
		low := p.Value.Sub(margin)
		if low.Sign() < 0 {
			low = decimal.Zero
		}
		lower[i] = DataPoint{Timestamp: p.Timestamp, Value: low}
	}
	return ForecastWithConfidence{
		Forecast:        forecast,
		Upper:           NewTimeSeries(upper, forecast.IntervalSecs),
		Lower:           NewTimeSeries(lower, forecast.IntervalSecs),
		ConfidenceLevel: confidenceLevel,
	}, nil
}

// fromFloatClamped converts a statistic back to decimal, flooring at zero.
func fromFloatClamped(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mu := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mu) * (v - mu)
	}
	return math.Sqrt(variance / float64(len(values)))
}
