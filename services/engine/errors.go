package engine

import "fmt"

// MinCandles is the smallest series a run will accept.
const MinCandles = 20

// InvalidConfigError reports a malformed or missing required config field.
// Fatal for the run; nothing is retried.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// InsufficientDataError reports a candle series too short to simulate.
type InsufficientDataError struct {
	Got int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d candles, need at least %d", e.Got, e.Min)
}
