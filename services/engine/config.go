package engine

// Backtest run configuration. Immutable once a run starts; Result keeps its
// own copy so later mutation by the caller cannot change a finished run.

import "time"

type Config struct {
	Symbol              string    `json:"symbol" yaml:"symbol"`
	StartDate           time.Time `json:"startDate" yaml:"start_date"`
	EndDate             time.Time `json:"endDate" yaml:"end_date"`
	InitialCapital      float64   `json:"initialCapital" yaml:"initial_capital"`
	PositionSizePercent float64   `json:"positionSizePercent" yaml:"position_size_percent"`
	MaxDrawdownPercent  float64   `json:"maxDrawdownPercent" yaml:"max_drawdown_percent"`
	CommissionPercent   float64   `json:"commissionPercent" yaml:"commission_percent"`
	SlippagePercent     float64   `json:"slippagePercent" yaml:"slippage_percent"`
	Leverage            float64   `json:"leverage" yaml:"leverage"`
}

// WithDefaults fills unset optional fields.
func (c Config) WithDefaults() Config {
	q := c
	if q.PositionSizePercent == 0 {
		q.PositionSizePercent = 10
	}
	if q.MaxDrawdownPercent == 0 {
		q.MaxDrawdownPercent = 100
	}
	if q.Leverage == 0 {
		q.Leverage = 1
	}
	return q
}

// Validate reports the first invalid field as an *InvalidConfigError.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return &InvalidConfigError{Field: "initialCapital", Reason: "must be > 0"}
	}
	if c.Leverage < 1 {
		return &InvalidConfigError{Field: "leverage", Reason: "must be >= 1"}
	}
	if c.PositionSizePercent <= 0 || c.PositionSizePercent > 100 {
		return &InvalidConfigError{Field: "positionSizePercent", Reason: "must be in (0, 100]"}
	}
	if c.MaxDrawdownPercent <= 0 || c.MaxDrawdownPercent > 100 {
		return &InvalidConfigError{Field: "maxDrawdownPercent", Reason: "must be in (0, 100]"}
	}
	if c.CommissionPercent < 0 {
		return &InvalidConfigError{Field: "commissionPercent", Reason: "must be >= 0"}
	}
	if c.SlippagePercent < 0 {
		return &InvalidConfigError{Field: "slippagePercent", Reason: "must be >= 0"}
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate) {
		return &InvalidConfigError{Field: "endDate", Reason: "date range is empty or inverted"}
	}
	return nil
}
