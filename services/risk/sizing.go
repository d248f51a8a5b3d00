// Package risk holds stateless position-sizing and value-at-risk
// calculators, usable standalone or as optimizer constraints.
package risk

import "math"

// FixedFractional sizes a position as a fixed fraction of equity.
// Returns the position notional.
func FixedFractional(equity, fractionPercent float64) float64 {
	if equity <= 0 || fractionPercent <= 0 {
		return 0
	}
	return equity * fractionPercent / 100
}

// FixedRisk sizes a position so that being stopped out loses at most
// riskPercent of equity. Returns the quantity; zero when the stop distance
// is not positive.
func FixedRisk(equity, riskPercent, entryPrice, stopPrice float64) float64 {
	dist := math.Abs(entryPrice - stopPrice)
	if equity <= 0 || riskPercent <= 0 || dist <= 0 {
		return 0
	}
	return equity * riskPercent / 100 / dist
}

// Kelly returns the Kelly criterion fraction for the given win rate and
// win/loss payoff ratio, clamped to [0, 1]. Zero when the payoff ratio is
// not positive.
func Kelly(winRate, payoffRatio float64) float64 {
	if payoffRatio <= 0 {
		return 0
	}
	f := winRate - (1-winRate)/payoffRatio
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// HalfKelly is the usual practical choice: half the full Kelly fraction.
func HalfKelly(winRate, payoffRatio float64) float64 {
	return Kelly(winRate, payoffRatio) / 2
}
