package risk

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/montecarlo"
)

// TradeReturns extracts per-trade fractional returns (P&L over entry
// notional) from closed trades.
func TradeReturns(trades []engine.Trade) []float64 {
	closed := engine.ClosedTrades(trades)
	out := make([]float64, 0, len(closed))
	for _, t := range closed {
		notional := t.EntryPrice * t.Quantity
		if notional <= 0 {
			continue
		}
		out = append(out, t.PnL/notional)
	}
	return out
}

// ParametricVaR is the loss threshold at the given confidence level under a
// normal fit of the return distribution. Returned as a positive fraction;
// zero for degenerate input.
func ParametricVaR(returns []float64, confidence float64) float64 {
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	sd := stat.StdDev(returns, nil)
	if sd == 0 {
		return 0
	}
	z := distuv.UnitNormal.Quantile(1 - confidence)
	v := -(mean + z*sd)
	if v < 0 {
		return 0
	}
	return v
}

// HistoricalVaR is the empirical percentile of realized trade returns at
// the given confidence level, as a positive fraction.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	v := -stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
	if v < 0 {
		return 0
	}
	return v
}

// ExpectedMaxDrawdown estimates the mean maximum drawdown percent via
// Monte Carlo trade resampling.
func ExpectedMaxDrawdown(ctx context.Context, trades []engine.Trade, initialCapital float64, runs int, seed int64) (float64, error) {
	sim := montecarlo.NewSimulator(nil)
	summary, err := sim.Run(ctx, montecarlo.Config{
		NumRuns:         runs,
		BootstrapMethod: montecarlo.MethodShuffle,
		Seed:            seed,
	}, trades, initialCapital)
	if err != nil {
		return 0, err
	}
	return summary.ExpectedMaxDrawdown, nil
}
