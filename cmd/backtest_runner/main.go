//! Backtest Runner - Executable for running a single strategy backtest
//!
//! Loads a YAML run file and a CSV candle series, runs the simulation,
//! prints a summary table and writes trade/equity/JSON exports.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"strategy-backtest/services/config"
	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
	"strategy-backtest/services/store"
)

func main() {
	var (
		configPath = flag.String("config", "run.yaml", "Path to YAML run file")
		dataPath   = flag.String("csv", "", "Override dataFile from the run file")
		outDir     = flag.String("out", "", "Override outputDir from the run file")
		quiet      = flag.Bool("quiet", false, "Suppress the summary table")
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
	if *dataPath != "" {
		rf.DataFile = *dataPath
	}
	if *outDir != "" {
		rf.OutputDir = *outDir
	}

	series, err := loadSeries(rf.DataFile)
	if err != nil {
		logger.Fatal("load candles", zap.String("file", rf.DataFile), zap.Error(err))
	}
	logger.Info("loaded candles",
		zap.String("file", rf.DataFile),
		zap.Int("bars", len(series)),
		zap.Time("start", series.Start()),
		zap.Time("end", series.End()))

	src := buildSource(rf.Strategy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := engine.NewRunner(logger)
	res, err := runner.Run(ctx, rf.Backtest, series, src)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}

	bundle := metrics.Compute(res)
	db := store.New()
	id := db.Save(res, bundle, "cli", rf.Backtest.Symbol)
	rec, _ := db.Get(id)

	if !*quiet {
		fmt.Println(store.RenderSummaryTable(rec))
	}

	if rf.OutputDir != "" {
		if err := writeExports(rf.OutputDir, rec); err != nil {
			logger.Fatal("write exports", zap.Error(err))
		}
		logger.Info("exports written", zap.String("dir", rf.OutputDir))
	}

	logger.Info("backtest complete",
		zap.String("runId", res.RunID),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("finalEquity", res.FinalEquity),
		zap.Float64("totalReturnPct", bundle.Summary.TotalReturnPercent))
}

func loadSeries(path string) (engine.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return engine.ReadCSV(f)
}

func buildSource(s config.Strategy) engine.SignalSource {
	fast := int(s.Params["fast"])
	slow := int(s.Params["slow"])
	return &engine.CrossoverSource{Fast: fast, Slow: slow}
}

func writeExports(dir string, rec *store.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	trades, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return err
	}
	defer trades.Close()
	if err := store.WriteTradesCSV(trades, rec.Result); err != nil {
		return err
	}
	equity, err := os.Create(filepath.Join(dir, "equity.csv"))
	if err != nil {
		return err
	}
	defer equity.Close()
	if err := store.WriteEquityCSV(equity, rec.Result); err != nil {
		return err
	}
	report, err := os.Create(filepath.Join(dir, "report.json"))
	if err != nil {
		return err
	}
	defer report.Close()
	return store.WriteJSON(report, rec)
}
