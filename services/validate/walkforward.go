package validate

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
	"strategy-backtest/services/optimize"
)

// ParamSelector picks the parameter set to carry into a fold's test window,
// given only the train window data.
type ParamSelector interface {
	Select(ctx context.Context, base engine.Config, train engine.Series) (optimize.ParamSet, error)
}

// FixedParams always selects the same parameter set (no optimization).
type FixedParams optimize.ParamSet

func (f FixedParams) Select(context.Context, engine.Config, engine.Series) (optimize.ParamSet, error) {
	return optimize.ParamSet(f).Clone(), nil
}

// GridSelector optimizes each fold's train window with a grid search.
type GridSelector struct {
	Grid  *optimize.GridSearch
	Space optimize.Space
}

func (g GridSelector) Select(ctx context.Context, base engine.Config, train engine.Series) (optimize.ParamSet, error) {
	res, err := g.Grid.Run(ctx, g.Space, base, train)
	if err != nil {
		return nil, err
	}
	return res.Best.Params, nil
}

// FoldResult is one train/test pair outcome. Efficiency is test objective
// over train objective; degradation is train minus test.
type FoldResult struct {
	Fold        Fold              `json:"fold"`
	Params      optimize.ParamSet `json:"params"`
	TrainScore  float64           `json:"trainScore"`
	TestScore   float64           `json:"testScore"`
	TestReturn  float64           `json:"testReturn"`
	Efficiency  float64           `json:"efficiency"`
	Degradation float64           `json:"degradation"`
	Err         string            `json:"error,omitempty"`
}

// Report aggregates fold outcomes. PValue is a two-sided one-sample t-test
// of the fold test returns against zero: whether the out-of-sample edge is
// distinguishable from chance.
type Report struct {
	Folds           []FoldResult  `json:"folds"`
	MeanEfficiency  float64       `json:"meanEfficiency"`
	MeanDegradation float64       `json:"meanDegradation"`
	MeanTestReturn  float64       `json:"meanTestReturn"`
	PValue          float64       `json:"pValue"`
	Significant     bool          `json:"significant"`
	Elapsed         time.Duration `json:"elapsed"`
}

// WalkForward replays fold-selected parameters, unmodified, on unseen test
// windows.
type WalkForward struct {
	Runner    *engine.Runner
	Factory   optimize.Factory
	Objective optimize.Objective
	Selector  ParamSelector
	Plan      FoldPlan
	Alpha     float64 // significance level, default 0.05

	log *zap.Logger
}

func NewWalkForward(runner *engine.Runner, factory optimize.Factory, obj optimize.Objective, sel ParamSelector, plan FoldPlan, log *zap.Logger) *WalkForward {
	if log == nil {
		log = zap.NewNop()
	}
	return &WalkForward{Runner: runner, Factory: factory, Objective: obj, Selector: sel, Plan: plan, Alpha: 0.05, log: log}
}

// Run walks the folds. A failed fold is isolated and reported on its row;
// the batch continues.
func (w *WalkForward) Run(ctx context.Context, base engine.Config, series engine.Series) (*Report, error) {
	folds, err := w.Plan.Folds(series.Start(), series.End())
	if err != nil {
		return nil, err
	}
	start := time.Now()
	w.log.Info("starting walk-forward analysis",
		zap.Int("folds", len(folds)),
		zap.Duration("embargo", w.Plan.EmbargoPeriod),
	)

	report := &Report{}
	for _, fold := range folds {
		row := w.runFold(ctx, base, series, fold)
		report.Folds = append(report.Folds, row)
		if row.Err != "" {
			w.log.Warn("walk-forward fold failed",
				zap.Int("fold", fold.Index), zap.String("error", row.Err))
		}
	}
	w.aggregate(report)
	report.Elapsed = time.Since(start)
	w.log.Info("walk-forward analysis complete",
		zap.Float64("mean_efficiency", report.MeanEfficiency),
		zap.Float64("p_value", report.PValue),
		zap.Bool("significant", report.Significant),
	)
	return report, nil
}

func (w *WalkForward) runFold(ctx context.Context, base engine.Config, series engine.Series, fold Fold) FoldResult {
	row := FoldResult{Fold: fold}

	train := series.Slice(fold.TrainStart, fold.TrainEnd)
	test := series.Slice(fold.TestStart, fold.TestEnd)

	params, err := w.Selector.Select(ctx, base, train)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Params = params

	trainBundle, err := w.replay(ctx, base, train, params)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	testBundle, err := w.replay(ctx, base, test, params)
	if err != nil {
		row.Err = err.Error()
		return row
	}

	row.TrainScore = w.Objective.Score(trainBundle)
	row.TestScore = w.Objective.Score(testBundle)
	row.TestReturn = testBundle.Summary.TotalReturnPercent
	if row.TrainScore != 0 && !math.IsInf(row.TrainScore, 0) {
		row.Efficiency = row.TestScore / row.TrainScore
	}
	row.Degradation = row.TrainScore - row.TestScore
	return row
}

// replay runs one window with frozen parameters and no date filtering
// beyond the window itself.
func (w *WalkForward) replay(ctx context.Context, base engine.Config, window engine.Series, params optimize.ParamSet) (*metrics.Bundle, error) {
	cfg, src, err := w.Factory(base, params)
	if err != nil {
		return nil, err
	}
	cfg.StartDate, cfg.EndDate = time.Time{}, time.Time{}
	run, err := w.Runner.Run(ctx, cfg, window, src)
	if err != nil {
		return nil, err
	}
	return metrics.Compute(run), nil
}

func (w *WalkForward) aggregate(r *Report) {
	var effs, degs, rets []float64
	for _, f := range r.Folds {
		if f.Err != "" {
			continue
		}
		effs = append(effs, f.Efficiency)
		degs = append(degs, f.Degradation)
		rets = append(rets, f.TestReturn)
	}
	if len(effs) > 0 {
		r.MeanEfficiency = stat.Mean(effs, nil)
		r.MeanDegradation = stat.Mean(degs, nil)
		r.MeanTestReturn = stat.Mean(rets, nil)
	}
	r.PValue = tTestPValue(rets)
	alpha := w.Alpha
	if alpha <= 0 {
		alpha = 0.05
	}
	r.Significant = r.PValue < alpha && r.MeanTestReturn > 0
}

// tTestPValue is a two-sided one-sample t-test against a zero mean. Fewer
// than two usable folds, or zero variance, yields 1 (no evidence).
func tTestPValue(sample []float64) float64 {
	n := len(sample)
	if n < 2 {
		return 1
	}
	mean := stat.Mean(sample, nil)
	sd := stat.StdDev(sample, nil)
	if sd == 0 {
		return 1
	}
	t := mean / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return 2 * dist.Survival(math.Abs(t))
}
