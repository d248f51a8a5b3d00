package optimize

import (
	"fmt"
	"math"

	"strategy-backtest/services/metrics"
)

// Metric names accepted by objectives.
const (
	MetricSharpe       = "sharpeRatio"
	MetricSortino      = "sortinoRatio"
	MetricCalmar       = "calmarRatio"
	MetricProfitFactor = "profitFactor"
	MetricTotalReturn  = "totalReturnPercent"
	MetricWinRate      = "winRate"
	MetricMaxDrawdown  = "maxDrawdownPercent"
	MetricExpectancy   = "expectancy"
)

// MetricValue extracts a named metric from a bundle. Unknown names yield
// (0, false).
func MetricValue(b *metrics.Bundle, name string) (float64, bool) {
	switch name {
	case MetricSharpe:
		return b.RiskMetrics.SharpeRatio, true
	case MetricSortino:
		return b.RiskMetrics.SortinoRatio, true
	case MetricCalmar:
		return b.RiskMetrics.CalmarRatio, true
	case MetricProfitFactor:
		return b.RiskMetrics.ProfitFactor, true
	case MetricTotalReturn:
		return b.Summary.TotalReturnPercent, true
	case MetricWinRate:
		return b.TradeStats.WinRate, true
	case MetricMaxDrawdown:
		// Lower is better; negated so every objective maximizes.
		return -b.RiskMetrics.MaxDrawdownPercent, true
	case MetricExpectancy:
		return b.TradeStats.Expectancy, true
	}
	return 0, false
}

// Constraints are hard limits a candidate must satisfy. Violators receive
// the worst possible score and are excluded from the Pareto frontier, but
// stay in the results table for inspection.
type Constraints struct {
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent,omitempty"`
	MinTrades          int     `json:"minTrades,omitempty"`
}

// Violated reports whether a bundle breaks any active constraint.
func (c Constraints) Violated(b *metrics.Bundle) bool {
	if c.MaxDrawdownPercent > 0 && b.RiskMetrics.MaxDrawdownPercent > c.MaxDrawdownPercent {
		return true
	}
	if c.MinTrades > 0 && b.TradeStats.TotalTrades < c.MinTrades {
		return true
	}
	return false
}

// Objective scores a metrics bundle. Either a single named metric or a
// weighted multi-objective combination; always maximized.
type Objective struct {
	Metric      string             `json:"metric,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	Constraints Constraints        `json:"constraints,omitempty"`
}

// MultiObjective reports whether more than one metric dimension is active.
func (o Objective) MultiObjective() bool { return len(o.Weights) > 1 }

// Dimensions lists the metric names the objective spans, deterministically.
func (o Objective) Dimensions() []string {
	if len(o.Weights) == 0 {
		if o.Metric == "" {
			return []string{MetricSharpe}
		}
		return []string{o.Metric}
	}
	dims := make(ParamSet, len(o.Weights))
	for k, w := range o.Weights {
		dims[k] = w
	}
	return sortedKeys(dims)
}

// Validate checks the metric names up front.
func (o Objective) Validate() error {
	probe := &metrics.Bundle{}
	for _, name := range o.Dimensions() {
		if _, ok := MetricValue(probe, name); !ok {
			return fmt.Errorf("unknown objective metric %q", name)
		}
	}
	return nil
}

// Score evaluates the objective. Constraint violations score -Inf. Infinite
// metric values (an unbeaten profit factor) are capped before weighting so a
// single dimension cannot wash out the rest.
func (o Objective) Score(b *metrics.Bundle) float64 {
	if b == nil {
		return math.Inf(-1)
	}
	if o.Constraints.Violated(b) {
		return math.Inf(-1)
	}
	if len(o.Weights) == 0 {
		v, _ := MetricValue(b, o.Dimensions()[0])
		return v
	}
	score := 0.0
	for name, w := range o.Weights {
		v, _ := MetricValue(b, name)
		if math.IsInf(v, 1) {
			v = 1000
		}
		if math.IsInf(v, -1) {
			v = -1000
		}
		score += w * v
	}
	return score
}
