// Package options is a simulation-core variant for option positions: the
// same bar-by-bar replay, plus per-position Greeks, daily theta decay, and
// deterministic lifecycle resolution (exercise, assignment, expiration).
package options

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"strategy-backtest/services/engine"
)

type ContractType int

const (
	Call ContractType = iota
	Put
)

func (t ContractType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

// PositionSide distinguishes bought from written contracts.
type PositionSide int

const (
	LongOption PositionSide = iota
	ShortOption
)

// Contract is one option order emitted by the source.
type Contract struct {
	Type      ContractType
	Side      PositionSide
	Strike    float64
	Expiry    time.Time
	Contracts float64 // number of contracts
}

// Source yields zero or one contract order per bar.
type Source interface {
	ContractAt(i int, history []engine.Candle) (Contract, bool)
}

// ScriptedSource replays a fixed schedule, for tests and demos.
type ScriptedSource struct {
	Orders map[int]Contract
}

func (s *ScriptedSource) ContractAt(i int, _ []engine.Candle) (Contract, bool) {
	c, ok := s.Orders[i]
	return c, ok
}

// Config for an options run. Volatility and rate feed the pricing model.
type Config struct {
	Symbol                string  `json:"symbol" yaml:"symbol"`
	InitialCapital        float64 `json:"initialCapital" yaml:"initial_capital"`
	Volatility            float64 `json:"volatility" yaml:"volatility"`                         // annualized, e.g. 0.3
	RiskFreeRate          float64 `json:"riskFreeRate" yaml:"risk_free_rate"`                   // annualized
	Multiplier            float64 `json:"multiplier" yaml:"multiplier"`                         // shares per contract, default 100
	CommissionPerContract float64 `json:"commissionPerContract" yaml:"commission_per_contract"`
	// AssignmentMoneyness is how far in-the-money (as a fraction of strike)
	// a short position must be before early assignment triggers.
	AssignmentMoneyness float64 `json:"assignmentMoneyness" yaml:"assignment_moneyness"`
}

func (c Config) withDefaults() Config {
	q := c
	if q.Multiplier == 0 {
		q.Multiplier = 100
	}
	if q.Volatility == 0 {
		q.Volatility = 0.3
	}
	if q.AssignmentMoneyness == 0 {
		q.AssignmentMoneyness = 0.05
	}
	return q
}

// position is one open contract with its running valuation.
type position struct {
	id         string
	contract   Contract
	entryPrice float64 // per-share premium
	entryTime  time.Time
	lastMark   time.Time
	greeks     Greeks
	thetaPaid  float64
}

// LifecycleEvent records exercise/assignment/expiration resolution.
type LifecycleEvent struct {
	Ts     time.Time `json:"timestamp"`
	Kind   string    `json:"kind"` // opened|closed|exercised|assigned|expired
	Detail string    `json:"detail"`
}

// OptionTrade is one completed option round trip.
type OptionTrade struct {
	ID         string       `json:"id"`
	Type       ContractType `json:"type"`
	Side       PositionSide `json:"side"`
	Strike     float64      `json:"strike"`
	Expiry     time.Time    `json:"expiry"`
	Contracts  float64      `json:"contracts"`
	EntryPrice float64      `json:"entryPrice"`
	ExitPrice  float64      `json:"exitPrice"`
	EntryTime  time.Time    `json:"entryTime"`
	ExitTime   time.Time    `json:"exitTime"`
	PnL        float64      `json:"pnl"`
	ThetaPaid  float64      `json:"thetaPaid"`
	Outcome    string       `json:"outcome"`
}

// Result of an options backtest.
type Result struct {
	Config      Config               `json:"config"`
	Trades      []OptionTrade        `json:"trades"`
	EquityCurve []engine.EquityPoint `json:"equityCurve"`
	Lifecycle   []LifecycleEvent     `json:"lifecycle"`
	FinalEquity float64              `json:"finalEquity"`
	// Greeks of open positions sampled at the final bar.
	OpenGreeks Greeks `json:"openGreeks"`
}

// Engine replays candles against an option source.
type Engine struct {
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Run simulates the option lifecycle bar by bar. Lifecycle resolution is
// deterministic: for a given series and source, the same exercises,
// assignments and expirations occur at the same bars.
func (e *Engine) Run(ctx context.Context, cfg Config, series engine.Series, src Source) (*Result, error) {
	cfg = cfg.withDefaults()
	if cfg.InitialCapital <= 0 {
		return nil, &engine.InvalidConfigError{Field: "initialCapital", Reason: "must be > 0"}
	}
	if src == nil {
		return nil, &engine.InvalidConfigError{Field: "signalSource", Reason: "is required"}
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("candle series: %w", err)
	}
	if len(series) < engine.MinCandles {
		return nil, &engine.InsufficientDataError{Got: len(series), Min: engine.MinCandles}
	}

	res := &Result{Config: cfg}
	cash := cfg.InitialCapital
	var open []*position

	for i, bar := range series {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("options run interrupted at bar %d: %w", i, err)
			}
		}

		// Reprice, accrue theta, and resolve lifecycle events.
		var kept []*position
		for _, pos := range open {
			done, pnl := e.resolve(cfg, res, pos, bar)
			if done {
				cash += pnl
				continue
			}
			kept = append(kept, pos)
		}
		open = kept

		// New order for this bar.
		if c, ok := src.ContractAt(i, series[:i+1]); ok {
			pos, premium := e.open(cfg, res, c, bar)
			if pos != nil {
				cash += premium // negative for bought options, positive for written
				open = append(open, pos)
			}
		}

		// Mark equity: cash plus liquidation value of open positions.
		eq := cash
		for _, pos := range open {
			eq += e.markValue(cfg, pos, bar)
		}
		res.EquityCurve = append(res.EquityCurve, engine.EquityPoint{Timestamp: bar.Timestamp, Equity: eq})
	}

	// Final Greeks of whatever stayed open.
	last := series[len(series)-1]
	for _, pos := range open {
		t := yearsBetween(last.Timestamp, pos.contract.Expiry)
		_, g := BlackScholes(pos.contract.Type, last.Close, pos.contract.Strike, t, cfg.Volatility, cfg.RiskFreeRate)
		scale := pos.contract.Contracts * cfg.Multiplier
		if pos.contract.Side == ShortOption {
			scale = -scale
		}
		res.OpenGreeks.Delta += g.Delta * scale
		res.OpenGreeks.Gamma += g.Gamma * scale
		res.OpenGreeks.Theta += g.Theta * scale
		res.OpenGreeks.Vega += g.Vega * scale
	}
	res.FinalEquity = res.EquityCurve[len(res.EquityCurve)-1].Equity
	e.log.Debug("options run complete",
		zap.String("symbol", cfg.Symbol),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.FinalEquity),
	)
	return res, nil
}

func (e *Engine) open(cfg Config, res *Result, c Contract, bar engine.Candle) (*position, float64) {
	t := yearsBetween(bar.Timestamp, c.Expiry)
	if t <= 0 || c.Contracts <= 0 {
		return nil, 0
	}
	premium, g := BlackScholes(c.Type, bar.Close, c.Strike, t, cfg.Volatility, cfg.RiskFreeRate)
	notional := premium * c.Contracts * cfg.Multiplier
	commission := cfg.CommissionPerContract * c.Contracts

	cashDelta := -commission
	if c.Side == LongOption {
		cashDelta -= notional
	} else {
		cashDelta += notional
	}
	pos := &position{
		id:         uuid.New().String(),
		contract:   c,
		entryPrice: premium,
		entryTime:  bar.Timestamp,
		lastMark:   bar.Timestamp,
		greeks:     g,
	}
	res.Lifecycle = append(res.Lifecycle, LifecycleEvent{Ts: bar.Timestamp, Kind: "opened",
		Detail: fmt.Sprintf("%s %s %.0f@%.2f exp %s", sideName(c.Side), c.Type, c.Contracts, c.Strike, c.Expiry.Format("2006-01-02"))})
	return pos, cashDelta
}

// resolve reprices the position at this bar, applies theta accrual, and
// settles lifecycle events. Returns (closed, cash delta).
func (e *Engine) resolve(cfg Config, res *Result, pos *position, bar engine.Candle) (bool, float64) {
	c := pos.contract
	t := yearsBetween(bar.Timestamp, c.Expiry)
	_, g := BlackScholes(c.Type, bar.Close, c.Strike, t, cfg.Volatility, cfg.RiskFreeRate)
	// Theta decay accrues per elapsed calendar day since the last mark.
	days := bar.Timestamp.Sub(pos.lastMark).Hours() / 24
	pos.thetaPaid += g.Theta * c.Contracts * cfg.Multiplier * days
	pos.lastMark = bar.Timestamp
	pos.greeks = g

	itm := intrinsic(c.Type, bar.Close, c.Strike)

	// Expiration: worthless OTM, auto-exercise ITM at intrinsic value.
	if !bar.Timestamp.Before(c.Expiry) {
		if itm > 0 {
			return true, e.settle(cfg, res, pos, bar, itm, "exercised")
		}
		return true, e.settle(cfg, res, pos, bar, 0, "expired")
	}

	// Early assignment: short positions deep enough in the money.
	if c.Side == ShortOption && c.Strike > 0 && itm/c.Strike >= cfg.AssignmentMoneyness {
		return true, e.settle(cfg, res, pos, bar, itm, "assigned")
	}
	return false, 0
}

// settle closes the position at the given per-share value and records the
// trade and lifecycle event.
func (e *Engine) settle(cfg Config, res *Result, pos *position, bar engine.Candle, value float64, outcome string) float64 {
	c := pos.contract
	scale := c.Contracts * cfg.Multiplier
	var pnl float64
	if c.Side == LongOption {
		pnl = (value - pos.entryPrice) * scale
	} else {
		pnl = (pos.entryPrice - value) * scale
	}
	// The premium itself already moved cash at open; settle the difference.
	var cashDelta float64
	if c.Side == LongOption {
		cashDelta = value * scale
	} else {
		cashDelta = -value * scale
	}
	res.Trades = append(res.Trades, OptionTrade{
		ID:         pos.id,
		Type:       c.Type,
		Side:       c.Side,
		Strike:     c.Strike,
		Expiry:     c.Expiry,
		Contracts:  c.Contracts,
		EntryPrice: pos.entryPrice,
		ExitPrice:  value,
		EntryTime:  pos.entryTime,
		ExitTime:   bar.Timestamp,
		PnL:        pnl,
		ThetaPaid:  pos.thetaPaid,
		Outcome:    outcome,
	})
	res.Lifecycle = append(res.Lifecycle, LifecycleEvent{Ts: bar.Timestamp, Kind: outcome,
		Detail: fmt.Sprintf("%s %s %.0f@%.2f settled %.2f pnl %.2f", sideName(c.Side), c.Type, c.Contracts, c.Strike, value, pnl)})
	return cashDelta
}

// markValue is the liquidation value of an open position at this bar.
func (e *Engine) markValue(cfg Config, pos *position, bar engine.Candle) float64 {
	c := pos.contract
	t := yearsBetween(bar.Timestamp, c.Expiry)
	price, _ := BlackScholes(c.Type, bar.Close, c.Strike, t, cfg.Volatility, cfg.RiskFreeRate)
	v := price * c.Contracts * cfg.Multiplier
	if c.Side == ShortOption {
		return -v
	}
	return v
}

func sideName(s PositionSide) string {
	if s == ShortOption {
		return "short"
	}
	return "long"
}

func yearsBetween(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Hours() / 24 / 365
}
