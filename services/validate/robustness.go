package validate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
	"strategy-backtest/services/optimize"
)

// Perturbation is one small change applied to an otherwise identical run.
type Perturbation struct {
	Name  string
	Apply func(engine.Config) engine.Config
}

// StandardPerturbations covers the usual fragility probes: cost shocks and
// a shifted start date.
func StandardPerturbations(barInterval time.Duration) []Perturbation {
	shift := 5 * barInterval
	return []Perturbation{
		{Name: "slippage+50%", Apply: func(c engine.Config) engine.Config {
			c.SlippagePercent *= 1.5
			return c
		}},
		{Name: "slippage-50%", Apply: func(c engine.Config) engine.Config {
			c.SlippagePercent *= 0.5
			return c
		}},
		{Name: "commission+50%", Apply: func(c engine.Config) engine.Config {
			c.CommissionPercent *= 1.5
			return c
		}},
		{Name: "commission-50%", Apply: func(c engine.Config) engine.Config {
			c.CommissionPercent *= 0.5
			return c
		}},
		{Name: "start+5bars", Apply: func(c engine.Config) engine.Config {
			if !c.StartDate.IsZero() {
				c.StartDate = c.StartDate.Add(shift)
			}
			return c
		}},
	}
}

// PerturbationResult reports how one probe moved the objective.
type PerturbationResult struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Degradation float64 `json:"degradation"` // baseline - perturbed
	Err         string  `json:"error,omitempty"`
}

// RobustnessReport flags strategies that collapse under small perturbations.
type RobustnessReport struct {
	BaselineScore    float64              `json:"baselineScore"`
	Perturbations    []PerturbationResult `json:"perturbations"`
	WorstDegradation float64              `json:"worstDegradation"`
	Fragile          bool                 `json:"fragile"`
}

// RobustnessTester re-runs the same configuration under each perturbation.
type RobustnessTester struct {
	Runner    *engine.Runner
	Factory   optimize.Factory
	Objective optimize.Objective
	// FragileThreshold is the objective degradation past which the strategy
	// is flagged, as a fraction of the baseline score. Default 0.5.
	FragileThreshold float64

	log *zap.Logger
}

func NewRobustnessTester(runner *engine.Runner, factory optimize.Factory, obj optimize.Objective, log *zap.Logger) *RobustnessTester {
	if log == nil {
		log = zap.NewNop()
	}
	return &RobustnessTester{Runner: runner, Factory: factory, Objective: obj, FragileThreshold: 0.5, log: log}
}

// Run evaluates the baseline and every perturbation; per-probe failures are
// isolated on their row.
func (rt *RobustnessTester) Run(ctx context.Context, base engine.Config, series engine.Series, params optimize.ParamSet, probes []Perturbation) (*RobustnessReport, error) {
	if len(probes) == 0 {
		probes = StandardPerturbations(series.BarInterval())
	}
	baseline, err := rt.score(ctx, base, series, params)
	if err != nil {
		return nil, fmt.Errorf("robustness baseline: %w", err)
	}

	report := &RobustnessReport{BaselineScore: baseline}
	for _, probe := range probes {
		row := PerturbationResult{Name: probe.Name}
		score, err := rt.score(ctx, probe.Apply(base), series, params)
		if err != nil {
			row.Err = err.Error()
		} else {
			row.Score = score
			row.Degradation = baseline - score
			if row.Degradation > report.WorstDegradation {
				report.WorstDegradation = row.Degradation
			}
		}
		report.Perturbations = append(report.Perturbations, row)
	}

	threshold := rt.FragileThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if baseline > 0 && report.WorstDegradation > baseline*threshold {
		report.Fragile = true
	}
	rt.log.Info("robustness test complete",
		zap.Float64("baseline", baseline),
		zap.Float64("worst_degradation", report.WorstDegradation),
		zap.Bool("fragile", report.Fragile),
	)
	return report, nil
}

func (rt *RobustnessTester) score(ctx context.Context, base engine.Config, series engine.Series, params optimize.ParamSet) (float64, error) {
	cfg, src, err := rt.Factory(base, params)
	if err != nil {
		return 0, err
	}
	run, err := rt.Runner.Run(ctx, cfg, series, src)
	if err != nil {
		return 0, err
	}
	return rt.Objective.Score(metrics.Compute(run)), nil
}
