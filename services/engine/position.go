package engine

import "time"

// Position is the open-position half of the simulator state machine.
// A nil *Position means flat.
type Position struct {
	ID         string
	Side       Side
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	StopLoss   float64
	TakeProfit float64
}

// Unrealized returns the mark-to-market P&L at the given price.
func (p *Position) Unrealized(price float64) float64 {
	if p == nil {
		return 0
	}
	if p.Side == Long {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// FirstTouchResult indicates which protective level was hit first in a bar.
type FirstTouchResult int

const (
	TouchNone FirstTouchResult = iota
	TouchTakeProfit
	TouchStop
)

// ResolveFirstTouch determines TP/SL hit order within one bar using the
// synthetic path rule: when both levels sit inside the bar, the extremum
// closer to the open is assumed touched first. Levels of 0 are ignored.
func (p *Position) ResolveFirstTouch(bar Candle) FirstTouchResult {
	if p == nil {
		return TouchNone
	}
	sl, tp := p.StopLoss, p.TakeProfit
	if p.Side == Long {
		hitSL := sl > 0 && bar.Low <= sl
		hitTP := tp > 0 && bar.High >= tp
		if hitSL && hitTP {
			if bar.Open-bar.Low < bar.High-bar.Open {
				return TouchStop
			}
			return TouchTakeProfit
		}
		if hitSL {
			return TouchStop
		}
		if hitTP {
			return TouchTakeProfit
		}
		return TouchNone
	}
	hitSL := sl > 0 && bar.High >= sl
	hitTP := tp > 0 && bar.Low <= tp
	if hitSL && hitTP {
		if bar.High-bar.Open < bar.Open-bar.Low {
			return TouchStop
		}
		return TouchTakeProfit
	}
	if hitSL {
		return TouchStop
	}
	if hitTP {
		return TouchTakeProfit
	}
	return TouchNone
}
