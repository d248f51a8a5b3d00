package engine

import "time"

// Trade is one round trip (or a still-open entry). Only closed trades count
// toward realized statistics.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entryTime"`
	ExitTime   time.Time `json:"exitTime"`
	PnL        float64   `json:"pnl"`
	ExitReason string    `json:"exitReason,omitempty"`
}

// Closed reports whether the trade has an exit.
func (t Trade) Closed() bool { return !t.ExitTime.IsZero() }

// ClosedTrades filters a trade list down to round trips.
func ClosedTrades(trades []Trade) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Closed() {
			out = append(out, t)
		}
	}
	return out
}

// EquityPoint is one equity sample, one per processed candle.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// DrawdownPoint is the percent decline from the running equity peak; always >= 0.
type DrawdownPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Drawdown  float64   `json:"drawdown"`
}

// Period describes the simulated time span.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Bars  int       `json:"bars"`
}

// Days returns the period length in (fractional) days.
func (p Period) Days() float64 {
	if p.End.Before(p.Start) || p.End.Equal(p.Start) {
		return 0
	}
	return p.End.Sub(p.Start).Hours() / 24
}

// Result is the immutable outcome of one simulation run: a deterministic
// pure function of (config, series, signal source).
type Result struct {
	RunID         string          `json:"runId"`
	Config        Config          `json:"config"`
	Period        Period          `json:"period"`
	Trades        []Trade         `json:"trades"`
	EquityCurve   []EquityPoint   `json:"equityCurve"`
	DrawdownCurve []DrawdownPoint `json:"drawdownCurve"`
	FinalEquity   float64         `json:"finalEquity"`
	Events        EventLog        `json:"-"`
}

// DrawdownFromEquity derives the drawdown-from-peak series of an equity curve.
func DrawdownFromEquity(curve []EquityPoint) []DrawdownPoint {
	out := make([]DrawdownPoint, len(curve))
	peak := 0.0
	for i, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - pt.Equity) / peak * 100
		}
		if dd < 0 {
			dd = 0
		}
		out[i] = DrawdownPoint{Timestamp: pt.Timestamp, Drawdown: dd}
	}
	return out
}
