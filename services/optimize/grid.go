package optimize

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

// Factory turns one parameter assignment into a runnable (config, signal
// source) pair. It is invoked once per candidate and must not share mutable
// state between invocations.
type Factory func(base engine.Config, ps ParamSet) (engine.Config, engine.SignalSource, error)

// Candidate is one evaluated grid point. Failed runs keep their error
// string; constraint violators keep their metrics but score -Inf.
type Candidate struct {
	Params  ParamSet        `json:"params"`
	Bundle  *metrics.Bundle `json:"metrics,omitempty"`
	Score   float64         `json:"score"`
	Rank    int             `json:"rank"`
	Err     string          `json:"error,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Result of a grid search: the ranked table, the winning run, and the
// Pareto frontier when multiple objectives are active.
type Result struct {
	Best       Candidate       `json:"best"`
	BestRun    *engine.Result  `json:"-"`
	BestBundle *metrics.Bundle `json:"bestMetrics"`
	Table      []Candidate     `json:"table"`
	Pareto     []Candidate     `json:"pareto,omitempty"`
	Partial    bool            `json:"partial"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// GridSearch materializes and evaluates every combination in the space.
type GridSearch struct {
	Runner          *engine.Runner
	Factory         Factory
	Objective       Objective
	Workers         int
	MaxCombinations int
	RunTimeout      time.Duration

	log *zap.Logger
}

func NewGridSearch(runner *engine.Runner, factory Factory, obj Objective, log *zap.Logger) *GridSearch {
	if log == nil {
		log = zap.NewNop()
	}
	return &GridSearch{Runner: runner, Factory: factory, Objective: obj, log: log}
}

// Run evaluates the full grid. A cancelled context stops dispatching new
// candidates; rows finished before the cancellation are still returned with
// Partial set.
func (g *GridSearch) Run(ctx context.Context, space Space, base engine.Config, series engine.Series) (*Result, error) {
	if err := g.Objective.Validate(); err != nil {
		return nil, err
	}
	combos, err := space.Combinations(g.MaxCombinations)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.log.Info("starting grid search",
		zap.Int("combinations", len(combos)),
		zap.Int("workers", workers),
		zap.Strings("objective", g.Objective.Dimensions()),
	)

	table := make([]Candidate, len(combos))
	var mu sync.Mutex
	partial := false

	eg, runCtx := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)
	for i, ps := range combos {
		if ctx.Err() != nil {
			partial = true
			// Unscheduled candidates stay as -Inf rows with a note.
			table[i] = Candidate{Params: ps, Score: math.Inf(-1), Err: "not evaluated: " + ctx.Err().Error()}
			continue
		}
		i, ps := i, ps
		eg.Go(func() error {
			row := g.evaluate(runCtx, base, series, ps)
			mu.Lock()
			table[i] = row
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	res := g.assemble(table)
	res.Partial = partial
	res.Elapsed = time.Since(start)

	// Re-run the winner once to attach its full result.
	if res.Best.Err == "" && !math.IsInf(res.Best.Score, -1) {
		if cfg, src, ferr := g.Factory(base, res.Best.Params); ferr == nil {
			if run, rerr := g.Runner.Run(ctx, cfg, series, src); rerr == nil {
				res.BestRun = run
				res.BestBundle = metrics.Compute(run)
			}
		}
	}
	g.log.Info("grid search complete",
		zap.Int("evaluated", len(table)),
		zap.Float64("best_score", res.Best.Score),
		zap.Bool("partial", res.Partial),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// evaluate runs one candidate in isolation; any failure is recorded on the
// row and does not abort the batch.
func (g *GridSearch) evaluate(ctx context.Context, base engine.Config, series engine.Series, ps ParamSet) Candidate {
	start := time.Now()
	row := Candidate{Params: ps, Score: math.Inf(-1)}

	if g.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.RunTimeout)
		defer cancel()
	}

	cfg, src, err := g.Factory(base, ps)
	if err != nil {
		row.Err = err.Error()
		row.Elapsed = time.Since(start)
		return row
	}
	run, err := g.Runner.Run(ctx, cfg, series, src)
	if err != nil {
		row.Err = err.Error()
		row.Elapsed = time.Since(start)
		return row
	}
	row.Bundle = metrics.Compute(run)
	row.Score = g.Objective.Score(row.Bundle)
	row.Elapsed = time.Since(start)
	return row
}

func (g *GridSearch) assemble(table []Candidate) *Result {
	ranked := append([]Candidate(nil), table...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	res := &Result{Table: ranked}
	if len(ranked) > 0 {
		res.Best = ranked[0]
	}
	if g.Objective.MultiObjective() {
		res.Pareto = paretoFrontier(ranked, g.Objective)
	}
	return res
}

// paretoFrontier keeps candidates not dominated on every objective
// dimension. Constraint violators and failed runs never enter.
func paretoFrontier(table []Candidate, obj Objective) []Candidate {
	dims := obj.Dimensions()
	valid := make([]Candidate, 0, len(table))
	for _, c := range table {
		if c.Bundle == nil || math.IsInf(c.Score, -1) {
			continue
		}
		valid = append(valid, c)
	}
	var frontier []Candidate
	for i, c := range valid {
		dominated := false
		for j, d := range valid {
			if i == j {
				continue
			}
			if dominates(d.Bundle, c.Bundle, dims) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, c)
		}
	}
	return frontier
}

// dominates reports whether a is at least as good as b on every dimension
// and strictly better on one.
func dominates(a, b *metrics.Bundle, dims []string) bool {
	strictly := false
	for _, dim := range dims {
		av, _ := MetricValue(a, dim)
		bv, _ := MetricValue(b, dim)
		if av < bv {
			return false
		}
		if av > bv {
			strictly = true
		}
	}
	return strictly
}
