package validate

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
	"strategy-backtest/services/optimize"
)

// SensitivityPoint is one neighbor evaluation: the optimum with a single
// parameter moved to Value.
type SensitivityPoint struct {
	Value float64 `json:"value"`
	Score float64 `json:"score"`
	Delta float64 `json:"delta"` // score - baseline
	Err   string  `json:"error,omitempty"`
}

// ParameterSensitivity summarizes how the objective reacts to moving one
// parameter while every other stays at its optimum.
type ParameterSensitivity struct {
	Name      string             `json:"name"`
	Optimum   float64            `json:"optimum"`
	Points    []SensitivityPoint `json:"points"`
	WorstDrop float64            `json:"worstDrop"` // largest score loss among evaluated neighbors
}

// SensitivityReport covers every parameter of the space. A sharp score
// cliff next to the optimum is the classic overfitting signature.
type SensitivityReport struct {
	BaselineScore float64                `json:"baselineScore"`
	Parameters    []ParameterSensitivity `json:"parameters"`
}

// SensitivityAnalyzer perturbs each parameter of a selected optimum within
// its declared domain and measures the objective delta per neighbor.
type SensitivityAnalyzer struct {
	Runner    *engine.Runner
	Factory   optimize.Factory
	Objective optimize.Objective
	Space     optimize.Space
	// Offsets is how many steps (or listed values) are evaluated on each
	// side of the optimum. Default 2.
	Offsets int
	Workers int

	log *zap.Logger
}

func NewSensitivityAnalyzer(runner *engine.Runner, factory optimize.Factory, obj optimize.Objective, space optimize.Space, log *zap.Logger) *SensitivityAnalyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SensitivityAnalyzer{Runner: runner, Factory: factory, Objective: obj, Space: space, Offsets: 2, log: log}
}

// Run scores the optimum once, then every single-parameter neighbor in
// parallel. Per-neighbor failures are isolated on their point.
func (sa *SensitivityAnalyzer) Run(ctx context.Context, base engine.Config, series engine.Series, best optimize.ParamSet) (*SensitivityReport, error) {
	if err := sa.Objective.Validate(); err != nil {
		return nil, err
	}
	baseline, err := sa.score(ctx, base, series, best)
	if err != nil {
		return nil, fmt.Errorf("sensitivity baseline: %w", err)
	}

	offsets := sa.Offsets
	if offsets <= 0 {
		offsets = 2
	}
	workers := sa.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &SensitivityReport{BaselineScore: baseline}
	for _, p := range sa.Space.Params {
		opt := best[p.Name]
		ps := ParameterSensitivity{
			Name:    p.Name,
			Optimum: opt,
			Points:  make([]SensitivityPoint, 0, 2*offsets),
		}
		for _, v := range neighborValues(p, opt, offsets) {
			ps.Points = append(ps.Points, SensitivityPoint{Value: v})
		}
		report.Parameters = append(report.Parameters, ps)
	}

	var mu sync.Mutex
	eg, runCtx := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)
	for pi := range report.Parameters {
		for vi := range report.Parameters[pi].Points {
			if ctx.Err() != nil {
				report.Parameters[pi].Points[vi].Err = "not evaluated: " + ctx.Err().Error()
				continue
			}
			pi, vi := pi, vi
			eg.Go(func() error {
				ps := &report.Parameters[pi]
				variant := best.Clone()
				variant[ps.Name] = ps.Points[vi].Value
				score, err := sa.score(runCtx, base, series, variant)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					ps.Points[vi].Err = err.Error()
					return nil
				}
				ps.Points[vi].Score = score
				ps.Points[vi].Delta = score - baseline
				return nil
			})
		}
	}
	_ = eg.Wait()

	for i := range report.Parameters {
		ps := &report.Parameters[i]
		for _, pt := range ps.Points {
			if pt.Err != "" {
				continue
			}
			if drop := baseline - pt.Score; drop > ps.WorstDrop {
				ps.WorstDrop = drop
			}
		}
		sa.log.Debug("parameter sensitivity",
			zap.String("parameter", ps.Name),
			zap.Float64("optimum", ps.Optimum),
			zap.Float64("worst_drop", ps.WorstDrop),
		)
	}
	sa.log.Info("sensitivity analysis complete",
		zap.Float64("baseline", baseline),
		zap.Int("parameters", len(report.Parameters)),
	)
	return report, nil
}

func (sa *SensitivityAnalyzer) score(ctx context.Context, base engine.Config, series engine.Series, params optimize.ParamSet) (float64, error) {
	cfg, src, err := sa.Factory(base, params)
	if err != nil {
		return 0, err
	}
	run, err := sa.Runner.Run(ctx, cfg, series, src)
	if err != nil {
		return 0, err
	}
	return sa.Objective.Score(metrics.Compute(run)), nil
}

// neighborValues lists up to offsets distinct values on each side of the
// optimum, clamped to the parameter's domain. For value sets it walks the
// listed neighbors of the entry nearest the optimum; for ranges it steps by
// the declared step, or a fifth of the span when no step is set.
func neighborValues(p optimize.Parameter, opt float64, offsets int) []float64 {
	var out []float64
	seen := map[float64]bool{opt: true}
	add := func(v float64) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	if len(p.Values) > 0 {
		at, dist := 0, math.Abs(opt-p.Values[0])
		for i, c := range p.Values[1:] {
			if d := math.Abs(opt - c); d < dist {
				at, dist = i+1, d
			}
		}
		for k := 1; k <= offsets; k++ {
			if i := at - k; i >= 0 {
				add(p.Values[i])
			}
			if i := at + k; i < len(p.Values) {
				add(p.Values[i])
			}
		}
		return out
	}
	step := p.Step
	if step <= 0 {
		step = (p.Max - p.Min) / 5
	}
	if step <= 0 {
		return nil
	}
	for k := 1; k <= offsets; k++ {
		add(p.Clamp(opt - float64(k)*step))
		add(p.Clamp(opt + float64(k)*step))
	}
	return out
}
