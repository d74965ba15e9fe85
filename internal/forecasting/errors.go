package forecasting

import "fmt"

// InsufficientDataError reports that a series is too short for a model or
// detector.
type InsufficientDataError struct {
	Needed int
	Got    int
	What   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s requires at least %d data points, got %d", e.What, e.Needed, e.Got)
}

// ModelError reports misuse of a model, such as forecasting before training.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string { return "model error: " + e.Message }

// ConfigError reports an invalid model or detector configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "invalid config: " + e.Message }
