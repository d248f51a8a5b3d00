package optimize

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

// GAConfig controls the genetic optimizer. Seed is required for
// reproducibility: identical seed and inputs produce an identical
// population trajectory.
type GAConfig struct {
	PopulationSize int     `json:"populationSize" yaml:"population_size"`
	Generations    int     `json:"generations" yaml:"generations"`
	ElitismRate    float64 `json:"elitismRate" yaml:"elitism_rate"`
	MutationRate   float64 `json:"mutationRate" yaml:"mutation_rate"`
	MutationStep   float64 `json:"mutationStep" yaml:"mutation_step"` // fraction of the parameter range
	Seed           int64   `json:"seed" yaml:"seed"`
}

func (c GAConfig) withDefaults() GAConfig {
	q := c
	if q.PopulationSize <= 0 {
		q.PopulationSize = 30
	}
	if q.Generations <= 0 {
		q.Generations = 20
	}
	if q.ElitismRate <= 0 {
		q.ElitismRate = 0.1
	}
	if q.MutationRate <= 0 {
		q.MutationRate = 0.1
	}
	if q.MutationStep <= 0 {
		q.MutationStep = 0.2
	}
	return q
}

// Generation records one step of the convergence history.
type Generation struct {
	Index     int      `json:"index"`
	BestScore float64  `json:"bestScore"`
	MeanScore float64  `json:"meanScore"`
	Best      ParamSet `json:"best"`
}

// GAResult is the outcome of a genetic run.
type GAResult struct {
	Best       Candidate       `json:"best"`
	BestRun    *engine.Result  `json:"-"`
	BestBundle *metrics.Bundle `json:"bestMetrics"`
	History    []Generation    `json:"history"`
	Partial    bool            `json:"partial"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// Genetic evolves a fixed-size population of parameter vectors.
type Genetic struct {
	Runner     *engine.Runner
	Factory    Factory
	Objective  Objective
	Config     GAConfig
	Workers    int
	RunTimeout time.Duration

	log *zap.Logger
}

func NewGenetic(runner *engine.Runner, factory Factory, obj Objective, cfg GAConfig, log *zap.Logger) *Genetic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Genetic{Runner: runner, Factory: factory, Objective: obj, Config: cfg, log: log}
}

// Run evolves the population. All random draws happen on the single seeded
// rng in a fixed order; fitness evaluation is parallel but side-effect free,
// so the trajectory is reproducible under a fixed seed.
func (g *Genetic) Run(ctx context.Context, space Space, base engine.Config, series engine.Series) (*GAResult, error) {
	if err := g.Objective.Validate(); err != nil {
		return nil, err
	}
	cfg := g.Config.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	start := time.Now()

	g.log.Info("starting genetic optimization",
		zap.Int("population", cfg.PopulationSize),
		zap.Int("generations", cfg.Generations),
		zap.Int64("seed", cfg.Seed),
	)

	pop := make([]ParamSet, cfg.PopulationSize)
	for i := range pop {
		pop[i] = space.SampleSet(rng)
	}

	res := &GAResult{Best: Candidate{Score: math.Inf(-1)}}
	for gen := 0; gen < cfg.Generations; gen++ {
		if ctx.Err() != nil {
			res.Partial = true
			break
		}
		scored := g.evaluatePopulation(ctx, base, series, pop)

		best, mean := scored[0], 0.0
		n := 0
		for _, c := range scored {
			if c.Score > best.Score {
				best = c
			}
			if !math.IsInf(c.Score, -1) {
				mean += c.Score
				n++
			}
		}
		if n > 0 {
			mean /= float64(n)
		}
		res.History = append(res.History, Generation{Index: gen, BestScore: best.Score, MeanScore: mean, Best: best.Params.Clone()})
		if best.Score > res.Best.Score {
			res.Best = best
		}

		pop = g.evolve(space, scored, rng, cfg)
	}

	if res.Best.Err == "" && !math.IsInf(res.Best.Score, -1) {
		if cfgBest, src, ferr := g.Factory(base, res.Best.Params); ferr == nil {
			if run, rerr := g.Runner.Run(ctx, cfgBest, series, src); rerr == nil {
				res.BestRun = run
				res.BestBundle = metrics.Compute(run)
			}
		}
	}
	res.Elapsed = time.Since(start)
	g.log.Info("genetic optimization complete",
		zap.Int("generations", len(res.History)),
		zap.Float64("best_score", res.Best.Score),
		zap.Bool("partial", res.Partial),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// evaluatePopulation scores every individual concurrently, writing results
// by index so ordering stays deterministic.
func (g *Genetic) evaluatePopulation(ctx context.Context, base engine.Config, series engine.Series, pop []ParamSet) []Candidate {
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	scored := make([]Candidate, len(pop))
	var mu sync.Mutex

	eg, runCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, ps := range pop {
		i, ps := i, ps
		eg.Go(func() error {
			row := g.evaluateOne(runCtx, base, series, ps)
			mu.Lock()
			scored[i] = row
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return scored
}

func (g *Genetic) evaluateOne(ctx context.Context, base engine.Config, series engine.Series, ps ParamSet) Candidate {
	row := Candidate{Params: ps, Score: math.Inf(-1)}
	if g.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.RunTimeout)
		defer cancel()
	}
	cfg, src, err := g.Factory(base, ps)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	run, err := g.Runner.Run(ctx, cfg, series, src)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Bundle = metrics.Compute(run)
	row.Score = g.Objective.Score(row.Bundle)
	return row
}

// evolve builds the next generation: elites carry over unchanged, the rest
// come from fitness-proportionate selection plus uniform crossover, then a
// MutationRate fraction of genes takes a bounded random step.
func (g *Genetic) evolve(space Space, scored []Candidate, rng *rand.Rand, cfg GAConfig) []ParamSet {
	ranked := append([]Candidate(nil), scored...)
	// Insertion sort keeps ties in evaluation order, which matters for
	// seed-for-seed reproducibility.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	next := make([]ParamSet, 0, len(scored))
	elites := int(float64(len(scored)) * cfg.ElitismRate)
	if elites < 1 {
		elites = 1
	}
	for i := 0; i < elites && i < len(ranked); i++ {
		next = append(next, ranked[i].Params.Clone())
	}

	for len(next) < len(scored) {
		a := g.selectParent(ranked, rng)
		b := g.selectParent(ranked, rng)
		child := crossover(space, a, b, rng)
		mutate(space, child, rng, cfg)
		next = append(next, child)
	}
	return next
}

// selectParent is roulette-wheel selection over scores shifted to be
// positive; -Inf individuals never reproduce.
func (g *Genetic) selectParent(ranked []Candidate, rng *rand.Rand) ParamSet {
	min := 0.0
	total := 0.0
	for _, c := range ranked {
		if math.IsInf(c.Score, -1) {
			continue
		}
		if c.Score < min {
			min = c.Score
		}
	}
	for _, c := range ranked {
		if math.IsInf(c.Score, -1) {
			continue
		}
		total += c.Score - min + 1e-9
	}
	if total <= 0 {
		// Whole population infeasible: pick uniformly.
		return ranked[rng.Intn(len(ranked))].Params.Clone()
	}
	pick := rng.Float64() * total
	for _, c := range ranked {
		if math.IsInf(c.Score, -1) {
			continue
		}
		pick -= c.Score - min + 1e-9
		if pick <= 0 {
			return c.Params.Clone()
		}
	}
	return ranked[0].Params.Clone()
}

// crossover takes each gene from either parent with equal probability.
func crossover(space Space, a, b ParamSet, rng *rand.Rand) ParamSet {
	child := make(ParamSet, len(a))
	for _, p := range space.Params {
		if rng.Float64() < 0.5 {
			child[p.Name] = a[p.Name]
		} else {
			child[p.Name] = b[p.Name]
		}
	}
	return child
}

// mutate perturbs a MutationRate fraction of genes by a bounded step within
// the parameter's valid range.
func mutate(space Space, ps ParamSet, rng *rand.Rand, cfg GAConfig) {
	for _, p := range space.Params {
		if rng.Float64() >= cfg.MutationRate {
			continue
		}
		span := p.Max - p.Min
		if len(p.Values) > 0 {
			ps[p.Name] = p.Values[rng.Intn(len(p.Values))]
			continue
		}
		step := (rng.Float64()*2 - 1) * cfg.MutationStep * span
		ps[p.Name] = p.Clamp(ps[p.Name] + step)
	}
}
