// Package metrics computes the performance and risk statistics bundle for a
// completed backtest. Pure functions over (trades, equity curve, config);
// degenerate inputs (zero trades, zero variance) produce neutral zero
// values, never errors.
package metrics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"strategy-backtest/services/engine"
)

// Summary mirrors the result fields the UI/export layer consumes.
type Summary struct {
	Symbol             string        `json:"symbol"`
	Period             engine.Period `json:"period"`
	InitialCapital     float64       `json:"initialCapital"`
	FinalCapital       float64       `json:"finalCapital"`
	TotalReturn        float64       `json:"totalReturn"`
	TotalReturnPercent float64       `json:"totalReturnPercent"`
	AnnualizedReturn   float64       `json:"annualizedReturn"`
}

type TradeStats struct {
	TotalTrades      int     `json:"totalTrades"`
	WinningTrades    int     `json:"winningTrades"`
	LosingTrades     int     `json:"losingTrades"`
	WinRate          float64 `json:"winRate"`
	AvgWin           float64 `json:"avgWin"`
	AvgLoss          float64 `json:"avgLoss"`
	LargestWin       float64 `json:"largestWin"`
	LargestLoss      float64 `json:"largestLoss"`
	AvgHoldingPeriod float64 `json:"avgHoldingPeriod"` // hours
	Expectancy       float64 `json:"expectancy"`
	MaxWinStreak     int     `json:"maxWinStreak"`
	MaxLossStreak    int     `json:"maxLossStreak"`
}

type RiskMetrics struct {
	MaxDrawdown        float64 `json:"maxDrawdown"`
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent"`
	SharpeRatio        float64 `json:"sharpeRatio"`
	SortinoRatio       float64 `json:"sortinoRatio"`
	CalmarRatio        float64 `json:"calmarRatio"`
	ProfitFactor       float64 `json:"profitFactor"`
	UlcerIndex         float64 `json:"ulcerIndex"`
	PainRatio          float64 `json:"painRatio"`
	RecoveryFactor     float64 `json:"recoveryFactor"`
	TailRatio          float64 `json:"tailRatio"`
}

// Bundle is the full statistics set attached to a BacktestResult.
type Bundle struct {
	Summary     Summary     `json:"summary"`
	TradeStats  TradeStats  `json:"tradeStats"`
	RiskMetrics RiskMetrics `json:"riskMetrics"`
}

// Compute derives the bundle from a finished run. Only closed trades count
// toward realized statistics.
func Compute(res *engine.Result) *Bundle {
	closed := engine.ClosedTrades(res.Trades)
	barsPerYear := barsPerYear(res.EquityCurve)

	b := &Bundle{}
	b.Summary = summarize(res)
	b.TradeStats = tradeStats(closed)

	rets := periodReturns(res.EquityCurve)
	ddAbs, ddPct := maxDrawdown(res.EquityCurve)

	b.RiskMetrics = RiskMetrics{
		MaxDrawdown:        ddAbs,
		MaxDrawdownPercent: ddPct,
		SharpeRatio:        sharpe(rets, barsPerYear, false),
		SortinoRatio:       sharpe(rets, barsPerYear, true),
		ProfitFactor:       ProfitFactor(closed),
		UlcerIndex:         UlcerIndex(res.DrawdownCurve),
		TailRatio:          TailRatio(rets),
	}
	if ddPct > 0 {
		b.RiskMetrics.CalmarRatio = b.Summary.AnnualizedReturn * 100 / ddPct
	}
	if b.RiskMetrics.UlcerIndex > 0 {
		b.RiskMetrics.PainRatio = b.Summary.AnnualizedReturn * 100 / b.RiskMetrics.UlcerIndex
	}
	if ddAbs > 0 {
		b.RiskMetrics.RecoveryFactor = b.Summary.TotalReturn / ddAbs
	}
	return b
}

func summarize(res *engine.Result) Summary {
	s := Summary{
		Symbol:         res.Config.Symbol,
		Period:         res.Period,
		InitialCapital: res.Config.InitialCapital,
		FinalCapital:   res.FinalEquity,
	}
	s.TotalReturn = s.FinalCapital - s.InitialCapital
	if s.InitialCapital > 0 {
		s.TotalReturnPercent = s.TotalReturn / s.InitialCapital * 100
	}
	if days := res.Period.Days(); days > 0 && s.InitialCapital > 0 && s.FinalCapital > 0 {
		s.AnnualizedReturn = math.Pow(s.FinalCapital/s.InitialCapital, 365/days) - 1
	}
	return s
}

func tradeStats(closed []engine.Trade) TradeStats {
	ts := TradeStats{TotalTrades: len(closed)}
	if len(closed) == 0 {
		return ts
	}

	var sumWin, sumLoss, sumPnL, sumHold float64
	winStreak, lossStreak := 0, 0
	for _, t := range closed {
		sumPnL += t.PnL
		sumHold += t.ExitTime.Sub(t.EntryTime).Hours()
		if t.PnL > 0 {
			ts.WinningTrades++
			sumWin += t.PnL
			if t.PnL > ts.LargestWin {
				ts.LargestWin = t.PnL
			}
			winStreak++
			lossStreak = 0
		} else {
			ts.LosingTrades++
			sumLoss += t.PnL
			// Largest loss is compared by magnitude, matching existing reports.
			if math.Abs(t.PnL) > math.Abs(ts.LargestLoss) {
				ts.LargestLoss = t.PnL
			}
			lossStreak++
			winStreak = 0
		}
		if winStreak > ts.MaxWinStreak {
			ts.MaxWinStreak = winStreak
		}
		if lossStreak > ts.MaxLossStreak {
			ts.MaxLossStreak = lossStreak
		}
	}
	ts.WinRate = float64(ts.WinningTrades) / float64(len(closed))
	if ts.WinningTrades > 0 {
		ts.AvgWin = sumWin / float64(ts.WinningTrades)
	}
	if ts.LosingTrades > 0 {
		ts.AvgLoss = sumLoss / float64(ts.LosingTrades)
	}
	ts.AvgHoldingPeriod = sumHold / float64(len(closed))
	ts.Expectancy = sumPnL / float64(len(closed))
	return ts
}

// ProfitFactor is sum(wins)/|sum(losses)|. The asymmetric edge cases are
// deliberate and must not be "fixed": +Inf when losses are zero and wins
// positive, 0 when both are zero.
func ProfitFactor(closed []engine.Trade) float64 {
	var wins, losses float64
	for _, t := range closed {
		if t.PnL > 0 {
			wins += t.PnL
		} else {
			losses += -t.PnL
		}
	}
	if losses == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return wins / losses
}

// UlcerIndex is the root-mean-square of the drawdown-from-peak series,
// penalizing depth and duration rather than just the single worst dip.
func UlcerIndex(dd []engine.DrawdownPoint) float64 {
	if len(dd) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, p := range dd {
		sumSq += p.Drawdown * p.Drawdown
	}
	return math.Sqrt(sumSq / float64(len(dd)))
}

// TailRatio is |p95| / |p5| of per-period returns.
func TailRatio(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	sorted := append([]float64(nil), rets...)
	sort.Float64s(sorted)
	p95 := math.Abs(stat.Quantile(0.95, stat.Empirical, sorted, nil))
	p5 := math.Abs(stat.Quantile(0.05, stat.Empirical, sorted, nil))
	if p5 == 0 {
		return 0
	}
	return p95 / p5
}

// sharpe annualizes mean/deviation of per-period returns; with downside=true
// only negative deviations count (Sortino).
func sharpe(rets []float64, barsPerYear float64, downside bool) float64 {
	if len(rets) < 2 {
		return 0
	}
	m := stat.Mean(rets, nil)
	var dev float64
	if downside {
		var sumSq float64
		n := 0
		for _, r := range rets {
			if r < 0 {
				sumSq += r * r
				n++
			}
		}
		if n == 0 {
			return 0
		}
		dev = math.Sqrt(sumSq / float64(n))
	} else {
		dev = stat.StdDev(rets, nil)
	}
	if dev == 0 {
		return 0
	}
	return m / dev * math.Sqrt(barsPerYear)
}

func periodReturns(curve []engine.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

func maxDrawdown(curve []engine.EquityPoint) (abs, pct float64) {
	peak := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if d := peak - p.Equity; d > abs {
			abs = d
			if peak > 0 {
				pct = d / peak * 100
			}
		}
	}
	return abs, pct
}

func barsPerYear(curve []engine.EquityPoint) float64 {
	if len(curve) < 2 {
		return 252
	}
	gaps := make([]time.Duration, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		gaps = append(gaps, curve[i].Timestamp.Sub(curve[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	iv := gaps[len(gaps)/2]
	if iv <= 0 {
		return 252
	}
	perDay := float64(24*time.Hour) / float64(iv)
	if perDay < 1 {
		perDay = 1
	}
	return perDay * 252
}
