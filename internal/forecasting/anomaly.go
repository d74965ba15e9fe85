package forecasting

import (
	"fmt"
	"math"
	"sort"
)

// AnomalyMethod names a detection algorithm.
type AnomalyMethod string

const (
	MethodZScore        AnomalyMethod = "z_score"
	MethodIQR           AnomalyMethod = "iqr"
	MethodMovingAverage AnomalyMethod = "moving_average"
	MethodModifiedZ     AnomalyMethod = "modified_z_score"
)

// AnomalySeverity grades how far past the threshold an observation landed.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is one flagged observation.
type Anomaly struct {
	Index    int               `json:"index"`
	Point    DataPoint         `json:"point"`
	Score    float64           `json:"score"`
	Severity AnomalySeverity   `json:"severity"`
	Method   AnomalyMethod     `json:"method"`
	Context  map[string]string `json:"context,omitempty"`
}

// AnomalyResult is a full detector run.
type AnomalyResult struct {
	Anomalies   []Anomaly     `json:"anomalies"`
	TotalPoints int           `json:"total_points"`
	AnomalyRate float64       `json:"anomaly_rate"`
	Method      AnomalyMethod `json:"method"`
	Threshold   float64       `json:"threshold"`
}

// AnomalyConfig parameterizes a detector.
type AnomalyConfig struct {
	Method AnomalyMethod `json:"method"`

	// Sensitivity is the flagging threshold: standard deviations for the
	// Z-based methods, the IQR fence multiplier for IQR.
	Sensitivity float64 `json:"sensitivity"`

	// MinDataPoints guards against flagging noise in short series.
	MinDataPoints int `json:"min_data_points"`

	// WindowSize applies to the moving-average method.
	WindowSize int `json:"window_size"`
}

// DefaultAnomalyConfig uses the 3-sigma Z-score convention over at least
// ten points.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		Method:        MethodZScore,
		Sensitivity:   3.0,
		MinDataPoints: 10,
		WindowSize:    7,
	}
}

// AnomalyDetector runs one configured method over a series.
type AnomalyDetector struct {
	cfg AnomalyConfig
}

// NewAnomalyDetector builds a detector.
func NewAnomalyDetector(cfg AnomalyConfig) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg}
}

// NewDefaultAnomalyDetector uses DefaultAnomalyConfig.
func NewDefaultAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{cfg: DefaultAnomalyConfig()}
}

// Detect runs the configured method. Series with zero variance never
// produce anomalies: the detectors refuse to divide by zero spread.
func (d *AnomalyDetector) Detect(data TimeSeriesData) (AnomalyResult, error) {
	if data.Len() < d.cfg.MinDataPoints {
		return AnomalyResult{}, &InsufficientDataError{
			Needed: d.cfg.MinDataPoints, Got: data.Len(), What: "anomaly detection",
		}
	}

	var (
		anomalies []Anomaly
		err       error
	)
	switch d.cfg.Method {
	case MethodZScore:
		anomalies = d.detectZScore(data)
	case MethodIQR:
		anomalies = d.detectIQR(data)
	case MethodMovingAverage:
		anomalies, err = d.detectMovingAverage(data)
	case MethodModifiedZ:
		anomalies = d.detectModifiedZ(data)
	default:
		err = &ConfigError{Message: fmt.Sprintf("unknown anomaly method %q", d.cfg.Method)}
	}
	if err != nil {
		return AnomalyResult{}, err
	}

	rate := 0.0
	if data.Len() > 0 {
		rate = float64(len(anomalies)) / float64(data.Len()) * 100
	}
	return AnomalyResult{
		Anomalies:   anomalies,
		TotalPoints: data.Len(),
		AnomalyRate: rate,
		Method:      d.cfg.Method,
		Threshold:   d.cfg.Sensitivity,
	}, nil
}

func (d *AnomalyDetector) detectZScore(data TimeSeriesData) []Anomaly {
	values := data.ValuesF64()
	mu := mean(values)
	sigma := stdDev(values)
	if sigma < 1e-12 {
		return nil
	}

	var out []Anomaly
	for i, p := range data.Points {
		z := math.Abs((values[i] - mu) / sigma)
		if z > d.cfg.Sensitivity {
			out = append(out, Anomaly{
				Index:    i,
				Point:    p,
				Score:    z,
				Severity: severityFor(z, d.cfg.Sensitivity),
				Method:   MethodZScore,
				Context: map[string]string{
					"mean":    fmt.Sprintf("%.2f", mu),
					"std_dev": fmt.Sprintf("%.2f", sigma),
					"z_score": fmt.Sprintf("%.2f", z),
				},
			})
		}
	}
	return out
}

func (d *AnomalyDetector) detectIQR(data TimeSeriesData) []Anomaly {
	values := data.ValuesF64()
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := sorted[len(sorted)/4]
	q3 := sorted[len(sorted)*3/4]
	iqr := q3 - q1
	if iqr < 1e-12 {
		return nil
	}

	lower := q1 - d.cfg.Sensitivity*iqr
	upper := q3 + d.cfg.Sensitivity*iqr

	var out []Anomaly
	for i, p := range data.Points {
		v := values[i]
		if v >= lower && v <= upper {
			continue
		}
		distance := v - upper
		if v < lower {
			distance = lower - v
		}
		score := distance / iqr
		out = append(out, Anomaly{
			Index:    i,
			Point:    p,
			Score:    score,
			Severity: severityFor(score, d.cfg.Sensitivity),
			Method:   MethodIQR,
			Context: map[string]string{
				"q1":          fmt.Sprintf("%.2f", q1),
				"q3":          fmt.Sprintf("%.2f", q3),
				"iqr":         fmt.Sprintf("%.2f", iqr),
				"lower_bound": fmt.Sprintf("%.2f", lower),
				"upper_bound": fmt.Sprintf("%.2f", upper),
			},
		})
	}
	return out
}

func (d *AnomalyDetector) detectMovingAverage(data TimeSeriesData) ([]Anomaly, error) {
	values := data.ValuesF64()
	window := d.cfg.WindowSize
	if half := data.Len() / 2; window > half {
		window = half
	}
	if window < 2 {
		return nil, &ConfigError{Message: "window size too small for moving average detection"}
	}

	var out []Anomaly
	for i := window; i < len(values); i++ {
		slice := values[i-window : i]
		mu := mean(slice)
		sigma := stdDev(slice)
		if sigma < 1e-12 {
			continue
		}
		deviation := math.Abs((values[i] - mu) / sigma)
		if deviation > d.cfg.Sensitivity {
			out = append(out, Anomaly{
				Index:    i,
				Point:    data.Points[i],
				Score:    deviation,
				Severity: severityFor(deviation, d.cfg.Sensitivity),
				Method:   MethodMovingAverage,
				Context: map[string]string{
					"window_mean": fmt.Sprintf("%.2f", mu),
					"window_std":  fmt.Sprintf("%.2f", sigma),
					"deviation":   fmt.Sprintf("%.2f", deviation),
				},
			})
		}
	}
	return out, nil
}

func (d *AnomalyDetector) detectModifiedZ(data TimeSeriesData) []Anomaly {
	values := data.ValuesF64()
	med := median(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad < 1e-12 {
		return nil
	}

	var out []Anomaly
	for i, p := range data.Points {
		modZ := 0.6745 * math.Abs(values[i]-med) / mad
		if modZ > d.cfg.Sensitivity {
			out = append(out, Anomaly{
				Index:    i,
				Point:    p,
				Score:    modZ,
				Severity: severityFor(modZ, d.cfg.Sensitivity),
				Method:   MethodModifiedZ,
				Context: map[string]string{
					"median":     fmt.Sprintf("%.2f", med),
					"mad":        fmt.Sprintf("%.2f", mad),
					"modified_z": fmt.Sprintf("%.2f", modZ),
				},
			})
		}
	}
	return out
}

// severityFor grades by the score-to-threshold ratio.
func severityFor(score, threshold float64) AnomalySeverity {
	ratio := score / threshold
	switch {
	case ratio > 2.0:
		return SeverityCritical
	case ratio > 1.5:
		return SeverityHigh
	case ratio > 1.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
