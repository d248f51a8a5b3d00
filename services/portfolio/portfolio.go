// Package portfolio composes per-asset simulation runs under a shared
// capital pool with scheduled or drift-triggered rebalancing.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

// InvalidAllocationError reports weights that do not total 100%.
// Fatal at construction, before any simulation runs.
type InvalidAllocationError struct {
	Total float64
}

func (e *InvalidAllocationError) Error() string {
	return fmt.Sprintf("invalid allocation: weights sum to %.4f%%, expected 100%%", e.Total)
}

// RebalanceFrequency selects the fixed rebalancing schedule.
type RebalanceFrequency string

const (
	RebalanceDaily   RebalanceFrequency = "daily"
	RebalanceWeekly  RebalanceFrequency = "weekly"
	RebalanceMonthly RebalanceFrequency = "monthly"
)

func (f RebalanceFrequency) interval() time.Duration {
	switch f {
	case RebalanceDaily:
		return 24 * time.Hour
	case RebalanceWeekly:
		return 7 * 24 * time.Hour
	case RebalanceMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Asset binds a symbol's weight to its candle series and signal source.
type Asset struct {
	Symbol        string
	WeightPercent float64
	Series        engine.Series
	Source        engine.SignalSource
}

// Config for a multi-asset run. The engine.Config fields apply per asset;
// per-asset initial capital is the weight share of the pool.
type Config struct {
	Base               engine.Config
	Rebalance          RebalanceFrequency
	RebalanceThreshold float64 // weight drift percent-points triggering a rebalance; 0 disables
	Workers            int
}

// AssetResult carries one sub-simulation plus its share of the pool.
type AssetResult struct {
	Symbol        string          `json:"symbol"`
	WeightPercent float64         `json:"weightPercent"`
	Run           *engine.Result  `json:"-"`
	Bundle        *metrics.Bundle `json:"metrics"`
	Contribution  float64         `json:"contribution"` // absolute P&L contribution
}

// Result of a portfolio backtest.
type Result struct {
	InitialCapital float64                `json:"initialCapital"`
	FinalEquity    float64                `json:"finalEquity"`
	TotalReturnPct float64                `json:"totalReturnPercent"`
	EquityCurve    []engine.EquityPoint   `json:"equityCurve"`
	DrawdownCurve  []engine.DrawdownPoint `json:"drawdownCurve"`
	Assets         []AssetResult          `json:"assets"`
	Rebalances     int                    `json:"rebalances"`
	// Correlation holds the realized pairwise return correlation matrix in
	// asset order.
	Correlation [][]float64 `json:"correlation"`
}

// Engine runs one simulation core per asset and combines the curves.
type Engine struct {
	runner *engine.Runner
	cfg    Config
	assets []Asset
	log    *zap.Logger
}

// New validates the allocation before anything runs: weights must total
// 100% (within 1e-9 of a percent-point).
func New(runner *engine.Runner, cfg Config, assets []Asset, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(assets) == 0 {
		return nil, &InvalidAllocationError{Total: 0}
	}
	total := 0.0
	for _, a := range assets {
		total += a.WeightPercent
	}
	if math.Abs(total-100) > 1e-9 {
		return nil, &InvalidAllocationError{Total: total}
	}
	return &Engine{runner: runner, cfg: cfg, assets: assets, log: log}, nil
}

// Run executes every per-asset sub-simulation concurrently (each is an
// independent pure computation), then merges them under the rebalancing
// policy.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool := e.cfg.Base.InitialCapital

	runs := make([]*engine.Result, len(e.assets))
	var mu sync.Mutex
	eg, runCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, a := range e.assets {
		i, a := i, a
		eg.Go(func() error {
			cfg := e.cfg.Base
			cfg.Symbol = a.Symbol
			cfg.InitialCapital = pool * a.WeightPercent / 100
			run, err := e.runner.Run(runCtx, cfg, a.Series, a.Source)
			if err != nil {
				return fmt.Errorf("asset %s: %w", a.Symbol, err)
			}
			mu.Lock()
			runs[i] = run
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := e.combine(runs)
	e.log.Info("portfolio backtest complete",
		zap.Int("assets", len(e.assets)),
		zap.Float64("final_equity", res.FinalEquity),
		zap.Int("rebalances", res.Rebalances),
	)
	return res, nil
}

// combine merges per-asset equity curves on a unified timeline. Holdings
// are scaled back to target weights at each rebalance point.
func (e *Engine) combine(runs []*engine.Result) *Result {
	pool := e.cfg.Base.InitialCapital
	res := &Result{InitialCapital: pool}

	// Unified timeline: union of all per-asset timestamps.
	stampSet := map[int64]time.Time{}
	for _, run := range runs {
		for _, pt := range run.EquityCurve {
			stampSet[pt.Timestamp.UnixNano()] = pt.Timestamp
		}
	}
	stamps := make([]time.Time, 0, len(stampSet))
	for _, ts := range stampSet {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// Normalized per-asset equity (1.0 = sub-sim start), stepped forward.
	norm := make([][]float64, len(runs))
	for i, run := range runs {
		norm[i] = sampleNormalized(run.EquityCurve, stamps, run.Config.InitialCapital)
	}

	weights := make([]float64, len(e.assets))
	for i, a := range e.assets {
		weights[i] = a.WeightPercent / 100
	}

	// holdings[i] is the capital allocated to asset i at its last rebalance,
	// in units of the asset's normalized equity at that moment.
	holdings := make([]float64, len(runs))
	baseNorm := make([]float64, len(runs))
	for i := range runs {
		holdings[i] = pool * weights[i]
		baseNorm[i] = 1
	}

	interval := e.cfg.Rebalance.interval()
	var lastRebalance time.Time
	if len(stamps) > 0 {
		lastRebalance = stamps[0]
	}

	curve := make([]engine.EquityPoint, 0, len(stamps))
	assetValues := make([]float64, len(runs))
	returns := make([][]float64, len(runs))
	prevValues := make([]float64, len(runs))

	for si, ts := range stamps {
		total := 0.0
		for i := range runs {
			assetValues[i] = holdings[i] * norm[i][si] / baseNorm[i]
			total += assetValues[i]
		}
		for i := range runs {
			if si > 0 && prevValues[i] > 0 {
				returns[i] = append(returns[i], assetValues[i]/prevValues[i]-1)
			}
			prevValues[i] = assetValues[i]
		}
		curve = append(curve, engine.EquityPoint{Timestamp: ts, Equity: total})

		if e.shouldRebalance(ts, lastRebalance, interval, assetValues, weights, total) {
			for i := range runs {
				holdings[i] = total * weights[i]
				baseNorm[i] = norm[i][si]
			}
			lastRebalance = ts
			res.Rebalances++
		}
	}

	res.EquityCurve = curve
	res.DrawdownCurve = engine.DrawdownFromEquity(curve)
	if len(curve) > 0 {
		res.FinalEquity = curve[len(curve)-1].Equity
		res.TotalReturnPct = (res.FinalEquity/pool - 1) * 100
	}

	for i, run := range runs {
		ar := AssetResult{
			Symbol:        e.assets[i].Symbol,
			WeightPercent: e.assets[i].WeightPercent,
			Run:           run,
			Bundle:        metrics.Compute(run),
		}
		ar.Contribution = run.FinalEquity - run.Config.InitialCapital
		res.Assets = append(res.Assets, ar)
	}
	res.Correlation = correlationMatrix(returns)
	return res
}

func (e *Engine) shouldRebalance(ts, last time.Time, interval time.Duration, values, weights []float64, total float64) bool {
	if interval > 0 && ts.Sub(last) >= interval {
		return true
	}
	if e.cfg.RebalanceThreshold > 0 && total > 0 {
		for i, v := range values {
			drift := math.Abs(v/total*100 - weights[i]*100)
			if drift > e.cfg.RebalanceThreshold {
				return true
			}
		}
	}
	return false
}

// sampleNormalized steps an equity curve onto the unified timeline,
// carrying the last value forward, normalized to the starting capital.
func sampleNormalized(curve []engine.EquityPoint, stamps []time.Time, capital float64) []float64 {
	out := make([]float64, len(stamps))
	j := 0
	last := 1.0
	for i, ts := range stamps {
		for j < len(curve) && !curve[j].Timestamp.After(ts) {
			if capital > 0 {
				last = curve[j].Equity / capital
			}
			j++
		}
		out[i] = last
	}
	return out
}

func correlationMatrix(returns [][]float64) [][]float64 {
	n := len(returns)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			k := len(returns[i])
			if len(returns[j]) < k {
				k = len(returns[j])
			}
			if k < 2 {
				continue
			}
			c := stat.Correlation(returns[i][:k], returns[j][:k], nil)
			if math.IsNaN(c) {
				c = 0
			}
			m[i][j], m[j][i] = c, c
		}
	}
	return m
}
