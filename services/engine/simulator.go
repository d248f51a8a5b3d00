package engine

// Bar-by-bar event-driven simulator. A single run is strictly sequential and
// path-dependent; state is threaded explicitly through each step so runs are
// trivially parallelizable across goroutines at the batch level.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// runState is the mutable per-run state advanced one candle at a time.
type runState struct {
	cash     float64
	peak     float64
	position *Position
	trades   []Trade
	curve    []EquityPoint
	events   EventLog
}

// Run replays the candle series through the cost model and returns the
// completed result. It fails with *InvalidConfigError or
// *InsufficientDataError before touching any state.
func (r *Runner) Run(ctx context.Context, cfg Config, series Series, src SignalSource) (*Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, &InvalidConfigError{Field: "signalSource", Reason: "is required"}
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("candle series: %w", err)
	}
	if !cfg.StartDate.IsZero() && !cfg.EndDate.IsZero() {
		series = series.Slice(cfg.StartDate, cfg.EndDate.Add(time.Nanosecond))
	}
	if len(series) < MinCandles {
		return nil, &InsufficientDataError{Got: len(series), Min: MinCandles}
	}

	runID := uuid.New().String()
	start := time.Now()
	st := &runState{
		cash: cfg.InitialCapital,
		peak: cfg.InitialCapital,
	}
	st.curve = make([]EquityPoint, 0, len(series))

	for i, bar := range series {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("run %s interrupted at bar %d: %w", runID, i, err)
			}
		}
		r.step(cfg, st, series[:i+1], bar, src, i)
	}

	// A still-open position is marked to the last close but excluded from
	// realized statistics.
	if st.position != nil {
		last := series[len(series)-1]
		st.events.Append(Event{Ts: last.Timestamp, Type: EventFinalMark, Symbol: cfg.Symbol,
			Detail: fmt.Sprintf("open %s marked at %.2f", st.position.Side, last.Close)})
	}

	final := st.equity(series[len(series)-1].Close)
	res := &Result{
		RunID:         runID,
		Config:        cfg,
		Period:        Period{Start: series.Start(), End: series.End(), Bars: len(series)},
		Trades:        st.trades,
		EquityCurve:   st.curve,
		DrawdownCurve: DrawdownFromEquity(st.curve),
		FinalEquity:   final,
		Events:        st.events,
	}
	r.log.Debug("backtest run complete",
		zap.String("run_id", runID),
		zap.String("symbol", cfg.Symbol),
		zap.Int("bars", len(series)),
		zap.Int("trades", len(st.trades)),
		zap.Float64("final_equity", final),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (st *runState) equity(price float64) float64 {
	return st.cash + st.position.Unrealized(price)
}

// step advances the state machine by one candle: mark to market, resolve
// protective levels, then apply the bar's signal.
func (r *Runner) step(cfg Config, st *runState, history []Candle, bar Candle, src SignalSource, i int) {
	// Protective levels resolve intrabar before the close is seen.
	if st.position != nil {
		switch st.position.ResolveFirstTouch(bar) {
		case TouchStop:
			r.closePosition(cfg, st, bar.Timestamp, st.position.StopLoss, "stop_loss", EventStopHit)
		case TouchTakeProfit:
			r.closePosition(cfg, st, bar.Timestamp, st.position.TakeProfit, "take_profit", EventTakeProfitHit)
		}
	}

	if sig, ok := src.SignalAt(i, history); ok {
		r.applySignal(cfg, st, bar, sig)
	}

	eq := st.equity(bar.Close)
	if eq > st.peak {
		st.peak = eq
	}
	st.curve = append(st.curve, EquityPoint{Timestamp: bar.Timestamp, Equity: eq})
}

func (r *Runner) applySignal(cfg Config, st *runState, bar Candle, sig Signal) {
	if st.position != nil {
		if st.position.Side == sig.Side {
			return // already positioned this way
		}
		r.closePosition(cfg, st, bar.Timestamp, bar.Close, "signal", EventClose)
		return
	}

	eq := st.equity(bar.Close)
	notional := cfg.PositionSizePercent / 100 * eq
	if maxNotional := eq * cfg.Leverage; notional > maxNotional {
		notional = maxNotional
	}
	if notional <= 0 || bar.Close <= 0 {
		return
	}

	fill := slip(bar.Close, sig.Side, true, cfg.SlippagePercent)
	commission := notional * cfg.CommissionPercent / 100

	// Risk-stop: reject rather than execute when the entry costs alone would
	// push drawdown past the configured limit.
	projected := eq - commission - slipCost(notional, cfg.SlippagePercent)
	if st.peak > 0 {
		dd := (st.peak - projected) / st.peak * 100
		if dd > cfg.MaxDrawdownPercent {
			st.events.Append(Event{Ts: bar.Timestamp, Type: EventSignalRejected, Symbol: cfg.Symbol,
				Detail: fmt.Sprintf("projected drawdown %.2f%% exceeds limit %.2f%%", dd, cfg.MaxDrawdownPercent)})
			return
		}
	}

	st.cash -= commission
	st.position = &Position{
		ID:         uuid.New().String(),
		Side:       sig.Side,
		Quantity:   notional / fill,
		EntryPrice: fill,
		EntryTime:  bar.Timestamp,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
	}
	st.events.Append(Event{Ts: bar.Timestamp, Type: EventOpen, Symbol: cfg.Symbol,
		Detail: fmt.Sprintf("%s %.6f @ %.2f", sig.Side, st.position.Quantity, fill)})
}

func (r *Runner) closePosition(cfg Config, st *runState, ts time.Time, price float64, reason string, ev EventType) {
	pos := st.position
	if pos == nil {
		return
	}
	fill := slip(price, pos.Side, false, cfg.SlippagePercent)
	realized := pos.Unrealized(fill)
	commission := fill * pos.Quantity * cfg.CommissionPercent / 100

	st.cash += realized - commission
	st.trades = append(st.trades, Trade{
		ID:         pos.ID,
		Symbol:     cfg.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill,
		Quantity:   pos.Quantity,
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		PnL:        realized - commission,
		ExitReason: reason,
	})
	st.events.Append(Event{Ts: ts, Type: ev, Symbol: cfg.Symbol,
		Detail: fmt.Sprintf("%s closed @ %.2f pnl %.2f", pos.Side, fill, realized-commission)})
	st.position = nil
}

// slip moves the fill price against the trader. Opening a long or closing a
// short buys (pay up); opening a short or closing a long sells (receive less).
func slip(price float64, side Side, opening bool, slippagePct float64) float64 {
	buying := (side == Long) == opening
	if buying {
		return price * (1 + slippagePct/100)
	}
	return price * (1 - slippagePct/100)
}

func slipCost(notional, slippagePct float64) float64 {
	return notional * slippagePct / 100
}
