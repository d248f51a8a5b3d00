// Package montecarlo resamples a closed-trade list into independent equity
// paths to estimate outcome distributions: probability of profit, final
// equity confidence intervals, and expected max drawdown.
package montecarlo

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"strategy-backtest/services/engine"
)

// BootstrapMethod selects how trade sequences are resampled.
type BootstrapMethod string

const (
	// MethodShuffle randomizes trade order; same trades, permuted.
	MethodShuffle BootstrapMethod = "shuffle"
	// MethodBootstrap draws trades with replacement, preserving length.
	MethodBootstrap BootstrapMethod = "bootstrap"
)

// Config uses the collaborator field names.
type Config struct {
	NumRuns          int             `json:"numRuns" yaml:"num_runs"`
	RandomizeEntries bool            `json:"randomizeEntries" yaml:"randomize_entries"`
	RandomizeExits   bool            `json:"randomizeExits" yaml:"randomize_exits"`
	ConfidenceLevel  float64         `json:"confidenceLevel" yaml:"confidence_level"`
	BootstrapMethod  BootstrapMethod `json:"bootstrapMethod" yaml:"bootstrap_method"`
	Seed             int64           `json:"seed" yaml:"seed"`
	Workers          int             `json:"workers,omitempty" yaml:"workers"`
}

// RunOutcome is one resampled path's endpoint.
type RunOutcome struct {
	FinalEquity float64 `json:"finalEquity"`
	MaxDrawdown float64 `json:"maxDrawdown"` // percent from peak
}

// Summary aggregates all runs. A degenerate input (zero trades or zero
// runs) yields a defined zero result, not an error.
type Summary struct {
	Runs                int           `json:"runs"`
	InitialCapital      float64       `json:"initialCapital"`
	ProbabilityOfProfit float64       `json:"probabilityOfProfit"`
	MeanFinalEquity     float64       `json:"meanFinalEquity"`
	MedianFinalEquity   float64       `json:"medianFinalEquity"`
	ConfidenceLevel     float64       `json:"confidenceLevel"`
	EquityLow           float64       `json:"equityLow"`           // lower CI bound
	EquityHigh          float64       `json:"equityHigh"`          // upper CI bound
	ExpectedMaxDrawdown float64       `json:"expectedMaxDrawdown"`
	MaxDrawdownP95      float64       `json:"maxDrawdownP95"`
	WorstDrawdown       float64       `json:"worstDrawdown"`
	Outcomes            []RunOutcome  `json:"-"`
	Elapsed             time.Duration `json:"elapsed"`
}

// Simulator resamples trade sequences. Each run derives its own rng from
// the master seed, so runs are independent and the batch is deterministic
// even under parallel execution.
type Simulator struct {
	log *zap.Logger
}

func NewSimulator(log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{log: log}
}

// Run replays cfg.NumRuns resampled orderings of the closed trades through
// the equity model. Cancellation stops dispatching new runs; completed
// outcomes are still aggregated.
func (s *Simulator) Run(ctx context.Context, cfg Config, trades []engine.Trade, initialCapital float64) (*Summary, error) {
	closed := engine.ClosedTrades(trades)
	summary := &Summary{
		InitialCapital:  initialCapital,
		ConfidenceLevel: cfg.ConfidenceLevel,
	}
	if cfg.NumRuns <= 0 || len(closed) == 0 {
		return summary, nil
	}
	if summary.ConfidenceLevel <= 0 || summary.ConfidenceLevel >= 1 {
		summary.ConfidenceLevel = 0.95
	}
	method := cfg.BootstrapMethod
	if method == "" {
		method = MethodShuffle
	}
	start := time.Now()

	src := legSet{
		pnl:       make([]float64, len(closed)),
		entry:     make([]float64, len(closed)),
		exit:      make([]float64, len(closed)),
		signedQty: make([]float64, len(closed)),
	}
	for i, t := range closed {
		src.pnl[i] = t.PnL
		src.entry[i] = t.EntryPrice
		src.exit[i] = t.ExitPrice
		src.signedQty[i] = t.Quantity
		if t.Side == engine.Short {
			src.signedQty[i] = -t.Quantity
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outcomes := make([]RunOutcome, cfg.NumRuns)
	var mu sync.Mutex
	dispatched := 0

	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)
	for i := 0; i < cfg.NumRuns; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		seed := cfg.Seed + int64(i)*0x9e3779b9
		dispatched++
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			out := replay(src, initialCapital, method, cfg.RandomizeEntries, cfg.RandomizeExits, rng)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	s.aggregate(summary, outcomes[:dispatched])
	summary.Elapsed = time.Since(start)
	s.log.Debug("monte carlo batch complete",
		zap.Int("runs", summary.Runs),
		zap.Int("trades", len(closed)),
		zap.String("method", string(method)),
		zap.Float64("probability_of_profit", summary.ProbabilityOfProfit),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// legSet holds the closed trades decomposed into entry and exit legs so the
// resampler can recombine them independently.
type legSet struct {
	pnl       []float64
	entry     []float64
	exit      []float64
	signedQty []float64 // quantity, negated for shorts
}

// replay walks one resampled trade ordering through the equity model. The
// order slice is local to the run: runs share no mutable state. With
// randomEntries/randomExits set, the matching leg of each drawn trade is
// replaced by a leg drawn uniformly from the whole list; recombined trades
// are repriced from the raw legs, gross of costs.
func replay(src legSet, capital float64, method BootstrapMethod, randomEntries, randomExits bool, rng *rand.Rand) RunOutcome {
	n := len(src.pnl)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	equity := capital
	peak := capital
	maxDD := 0.0
	for i := 0; i < n; i++ {
		var b int
		if method == MethodBootstrap {
			b = rng.Intn(n)
		} else {
			// Fisher-Yates style draw without replacement.
			j := i + rng.Intn(n-i)
			order[i], order[j] = order[j], order[i]
			b = order[i]
		}
		pnl := src.pnl[b]
		if randomEntries || randomExits {
			e, x := b, b
			if randomEntries {
				e = rng.Intn(n)
			}
			if randomExits {
				x = rng.Intn(n)
			}
			pnl = src.signedQty[b] * (src.exit[x] - src.entry[e])
		}
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return RunOutcome{FinalEquity: equity, MaxDrawdown: maxDD}
}

func (s *Simulator) aggregate(summary *Summary, outcomes []RunOutcome) {
	summary.Runs = len(outcomes)
	summary.Outcomes = outcomes
	if len(outcomes) == 0 {
		return
	}
	finals := make([]float64, len(outcomes))
	dds := make([]float64, len(outcomes))
	profitable := 0
	for i, o := range outcomes {
		finals[i] = o.FinalEquity
		dds[i] = o.MaxDrawdown
		if o.FinalEquity > summary.InitialCapital {
			profitable++
		}
		if o.MaxDrawdown > summary.WorstDrawdown {
			summary.WorstDrawdown = o.MaxDrawdown
		}
	}
	sort.Float64s(finals)
	sort.Float64s(dds)

	summary.ProbabilityOfProfit = float64(profitable) / float64(len(outcomes))
	summary.MeanFinalEquity = stat.Mean(finals, nil)
	summary.MedianFinalEquity = stat.Quantile(0.5, stat.Empirical, finals, nil)
	alpha := 1 - summary.ConfidenceLevel
	summary.EquityLow = stat.Quantile(alpha/2, stat.Empirical, finals, nil)
	summary.EquityHigh = stat.Quantile(1-alpha/2, stat.Empirical, finals, nil)
	summary.ExpectedMaxDrawdown = stat.Mean(dds, nil)
	summary.MaxDrawdownP95 = stat.Quantile(0.95, stat.Empirical, dds, nil)
}
