package store

// Benchmark comparison: the strategy's equity curve against buy-and-hold on
// the same candle series.

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"strategy-backtest/services/engine"
)

// BenchmarkComparison relates a strategy to its buy-and-hold baseline.
type BenchmarkComparison struct {
	StrategyReturnPct  float64 `json:"strategyReturnPercent"`
	BenchmarkReturnPct float64 `json:"benchmarkReturnPercent"`
	Alpha              float64 `json:"alpha"` // excess return, percent points
	Beta               float64 `json:"beta"`
	Correlation        float64 `json:"correlation"`
}

// CompareToBenchmark computes buy-and-hold on the candle series underlying
// the run and relates the two return streams.
func CompareToBenchmark(res *engine.Result, series engine.Series) *BenchmarkComparison {
	out := &BenchmarkComparison{}
	if res == nil || len(res.EquityCurve) < 2 || len(series) < 2 {
		return out
	}
	initial := res.Config.InitialCapital
	if initial > 0 {
		out.StrategyReturnPct = (res.FinalEquity/initial - 1) * 100
	}
	if series[0].Close > 0 {
		out.BenchmarkReturnPct = (series[len(series)-1].Close/series[0].Close - 1) * 100
	}
	out.Alpha = out.StrategyReturnPct - out.BenchmarkReturnPct

	// Per-bar return streams aligned on the shorter of the two.
	n := len(res.EquityCurve)
	if len(series) < n {
		n = len(series)
	}
	var stratRets, benchRets []float64
	for i := 1; i < n; i++ {
		pe := res.EquityCurve[i-1].Equity
		pc := series[i-1].Close
		if pe <= 0 || pc <= 0 {
			continue
		}
		stratRets = append(stratRets, res.EquityCurve[i].Equity/pe-1)
		benchRets = append(benchRets, series[i].Close/pc-1)
	}
	if len(stratRets) < 2 {
		return out
	}
	cov := stat.Covariance(stratRets, benchRets, nil)
	bvar := stat.Variance(benchRets, nil)
	if bvar > 0 {
		out.Beta = cov / bvar
	}
	corr := stat.Correlation(stratRets, benchRets, nil)
	if !math.IsNaN(corr) {
		out.Correlation = corr
	}
	return out
}
