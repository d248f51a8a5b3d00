//! Optimizer - Parameter search, walk-forward validation, Monte Carlo
//!
//! Runs a grid or genetic search over the parameter space in the run file,
//! reports how sensitive the winner is to each parameter, then optionally
//! walk-forward validates it and stress tests it with trade resampling.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"strategy-backtest/services/config"
	"strategy-backtest/services/engine"
	"strategy-backtest/services/montecarlo"
	"strategy-backtest/services/optimize"
	"strategy-backtest/services/validate"
)

func main() {
	var (
		configPath = flag.String("config", "run.yaml", "Path to YAML run file")
		topN       = flag.Int("top", 10, "Rows of the ranked table to print")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rf, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if len(rf.Optimize.Parameters) == 0 {
		logger.Fatal("run file has no optimize.parameters")
	}

	f, err := os.Open(rf.DataFile)
	if err != nil {
		logger.Fatal("open data file", zap.Error(err))
	}
	series, err := engine.ReadCSV(f)
	f.Close()
	if err != nil {
		logger.Fatal("load candles", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := engine.NewRunner(logger)
	space := rf.Optimize.Space()
	obj := rf.Optimize.Objective()
	factory := crossoverFactory

	best, ranked := runSearch(ctx, logger, rf, runner, space, obj, factory, series)
	printTable(ranked, *topN)
	fmt.Printf("\nbest: %v  score=%.4f\n", best.Params, best.Score)

	runSensitivity(ctx, logger, rf, runner, space, obj, factory, series, best.Params)

	if rf.WalkForward.Enabled {
		runWalkForward(ctx, logger, rf, runner, space, obj, factory, series)
	}
	if rf.MonteCarlo.Enabled {
		runMonteCarlo(ctx, logger, rf, runner, factory, best.Params, series)
	}
}

// crossoverFactory maps the "fast" and "slow" parameters onto the built-in
// SMA crossover source.
func crossoverFactory(base engine.Config, ps optimize.ParamSet) (engine.Config, engine.SignalSource, error) {
	fast := int(ps["fast"])
	slow := int(ps["slow"])
	if fast > 0 && slow > 0 && slow <= fast {
		return engine.Config{}, nil, fmt.Errorf("slow period %d must exceed fast period %d", slow, fast)
	}
	return base, &engine.CrossoverSource{Fast: fast, Slow: slow}, nil
}

func runSearch(ctx context.Context, logger *zap.Logger, rf *config.RunFile, runner *engine.Runner,
	space optimize.Space, obj optimize.Objective, factory optimize.Factory, series engine.Series) (optimize.Candidate, []optimize.Candidate) {

	if rf.Optimize.Mode == "genetic" {
		ga := optimize.NewGenetic(runner, factory, obj, optimize.GAConfig{
			PopulationSize: rf.Optimize.PopulationSize,
			Generations:    rf.Optimize.Generations,
			ElitismRate:    rf.Optimize.ElitismRate,
			MutationRate:   rf.Optimize.MutationRate,
			Seed:           rf.Optimize.Seed,
		}, logger)
		ga.Workers = rf.Optimize.Workers
		res, err := ga.Run(ctx, space, rf.Backtest, series)
		if err != nil {
			logger.Fatal("genetic search failed", zap.Error(err))
		}
		for _, gen := range res.History {
			logger.Info("generation",
				zap.Int("index", gen.Index),
				zap.Float64("best", gen.BestScore),
				zap.Float64("mean", gen.MeanScore))
		}
		return res.Best, []optimize.Candidate{res.Best}
	}

	gs := optimize.NewGridSearch(runner, factory, obj, logger)
	gs.Workers = rf.Optimize.Workers
	gs.MaxCombinations = rf.Optimize.MaxCombinations
	res, err := gs.Run(ctx, space, rf.Backtest, series)
	if err != nil {
		logger.Fatal("grid search failed", zap.Error(err))
	}
	if res.Partial {
		logger.Warn("search interrupted, results are partial",
			zap.Int("evaluated", len(res.Table)))
	}
	return res.Best, res.Table
}

func printTable(rows []optimize.Candidate, topN int) {
	if len(rows) == 0 {
		return
	}
	keys := make([]string, 0, len(rows[0].Params))
	for k := range rows[0].Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	header := table.Row{"rank", "score"}
	for _, k := range keys {
		header = append(header, k)
	}
	header = append(header, "error")
	t.AppendHeader(header)
	for i, c := range rows {
		if i >= topN {
			break
		}
		row := table.Row{c.Rank, fmt.Sprintf("%.4f", c.Score)}
		for _, k := range keys {
			row = append(row, c.Params[k])
		}
		row = append(row, c.Err)
		t.AppendRow(row)
	}
	fmt.Println(t.Render())
}

func runSensitivity(ctx context.Context, logger *zap.Logger, rf *config.RunFile, runner *engine.Runner,
	space optimize.Space, obj optimize.Objective, factory optimize.Factory, series engine.Series, best optimize.ParamSet) {

	sa := validate.NewSensitivityAnalyzer(runner, factory, obj, space, logger)
	sa.Workers = rf.Optimize.Workers
	report, err := sa.Run(ctx, rf.Backtest, series, best)
	if err != nil {
		logger.Warn("sensitivity analysis failed", zap.Error(err))
		return
	}
	for _, ps := range report.Parameters {
		logger.Info("parameter sensitivity",
			zap.String("parameter", ps.Name),
			zap.Float64("optimum", ps.Optimum),
			zap.Float64("worstDrop", ps.WorstDrop),
			zap.Int("neighbors", len(ps.Points)))
	}
}

func runWalkForward(ctx context.Context, logger *zap.Logger, rf *config.RunFile, runner *engine.Runner,
	space optimize.Space, obj optimize.Objective, factory optimize.Factory, series engine.Series) {

	selector := validate.GridSelector{
		Grid:  optimize.NewGridSearch(runner, factory, obj, logger),
		Space: space,
	}
	wf := validate.NewWalkForward(runner, factory, obj, selector, rf.WalkForward.Plan(), logger)
	report, err := wf.Run(ctx, rf.Backtest, series)
	if err != nil {
		logger.Fatal("walk-forward failed", zap.Error(err))
	}
	logger.Info("walk-forward complete",
		zap.Int("folds", len(report.Folds)),
		zap.Float64("meanEfficiency", report.MeanEfficiency),
		zap.Float64("meanTestReturn", report.MeanTestReturn),
		zap.Float64("pValue", report.PValue),
		zap.Bool("significant", report.Significant))
	for _, fr := range report.Folds {
		if fr.Err != "" {
			logger.Warn("fold failed", zap.Int("fold", fr.Fold.Index), zap.String("error", fr.Err))
			continue
		}
		logger.Info("fold",
			zap.Int("index", fr.Fold.Index),
			zap.Float64("trainScore", fr.TrainScore),
			zap.Float64("testScore", fr.TestScore),
			zap.Float64("efficiency", fr.Efficiency))
	}
}

func runMonteCarlo(ctx context.Context, logger *zap.Logger, rf *config.RunFile, runner *engine.Runner,
	factory optimize.Factory, params optimize.ParamSet, series engine.Series) {

	cfg, src, err := factory(rf.Backtest, params)
	if err != nil {
		logger.Fatal("build winning candidate", zap.Error(err))
	}
	res, err := runner.Run(ctx, cfg, series, src)
	if err != nil {
		logger.Fatal("replay winning candidate", zap.Error(err))
	}
	sim := montecarlo.NewSimulator(logger)
	summary, err := sim.Run(ctx, rf.MonteCarlo.Config(), res.Trades, cfg.InitialCapital)
	if err != nil {
		logger.Fatal("monte carlo failed", zap.Error(err))
	}
	logger.Info("monte carlo complete",
		zap.Int("runs", summary.Runs),
		zap.Float64("probabilityOfProfit", summary.ProbabilityOfProfit),
		zap.Float64("medianFinalEquity", summary.MedianFinalEquity),
		zap.Float64("equityLow", summary.EquityLow),
		zap.Float64("equityHigh", summary.EquityHigh),
		zap.Float64("expectedMaxDrawdown", summary.ExpectedMaxDrawdown),
		zap.Float64("maxDrawdownP95", summary.MaxDrawdownP95))
}
