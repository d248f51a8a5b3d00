package validate

import (
	"context"
	"math"
	"testing"
	"time"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/optimize"
)

// waveSeries oscillates so crossover strategies trade in every window.
func waveSeries(days int) engine.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := days * 24
	s := make(engine.Series, n)
	for i := range s {
		px := 100 + 10*math.Sin(float64(i)/24)
		s[i] = engine.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      px, High: px + 0.5, Low: px - 0.5, Close: px,
			Volume: 1000,
		}
	}
	return s
}

func crossoverFactory(base engine.Config, ps optimize.ParamSet) (engine.Config, engine.SignalSource, error) {
	return base, &engine.CrossoverSource{Fast: int(ps["fast"]), Slow: int(ps["slow"])}, nil
}

func TestWalkForwardFixedParams(t *testing.T) {
	base := engine.Config{Symbol: "TEST", InitialCapital: 10000, PositionSizePercent: 50, Leverage: 1}
	plan := FoldPlan{
		Method:          MethodRolling,
		TrainWindowDays: 20,
		TestWindowDays:  10,
		StepDays:        15,
		EmbargoPeriod:   24 * time.Hour,
	}
	sel := FixedParams{"fast": 6, "slow": 24}
	wf := NewWalkForward(engine.NewRunner(nil), crossoverFactory, optimize.Objective{Metric: optimize.MetricTotalReturn}, sel, plan, nil)

	report, err := wf.Run(context.Background(), base, waveSeries(80))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Folds) == 0 {
		t.Fatal("expected folds")
	}
	for _, f := range report.Folds {
		if f.Err != "" {
			t.Fatalf("fold %d failed: %s", f.Fold.Index, f.Err)
		}
		if f.Params["fast"] != 6 {
			t.Fatal("fixed selector must pass params through unchanged")
		}
	}
	if report.PValue < 0 || report.PValue > 1 {
		t.Fatalf("p-value %v out of range", report.PValue)
	}
}

func TestTTestPValue(t *testing.T) {
	if p := tTestPValue([]float64{5}); p != 1 {
		t.Fatalf("single sample: p = %v, want 1", p)
	}
	if p := tTestPValue([]float64{2, 2, 2, 2}); p != 1 {
		t.Fatalf("zero variance: p = %v, want 1", p)
	}
	strong := []float64{1, 1.1, 0.9, 1.05, 0.95, 1.02}
	if p := tTestPValue(strong); p >= 0.01 {
		t.Fatalf("strong positive edge: p = %v, want < 0.01", p)
	}
	weak := []float64{1, -1.2, 0.8, -0.9}
	if p := tTestPValue(weak); p < 0.3 {
		t.Fatalf("noise: p = %v, want large", p)
	}
}

func TestRobustnessIsolatesFailures(t *testing.T) {
	base := engine.Config{Symbol: "TEST", InitialCapital: 10000, PositionSizePercent: 50, Leverage: 1}
	rt := NewRobustnessTester(engine.NewRunner(nil), crossoverFactory, optimize.Objective{Metric: optimize.MetricTotalReturn}, nil)

	series := waveSeries(20)
	probes := []Perturbation{
		{Name: "noop", Apply: func(c engine.Config) engine.Config { return c }},
		{Name: "broken", Apply: func(c engine.Config) engine.Config {
			c.InitialCapital = -1
			return c
		}},
	}
	report, err := rt.Run(context.Background(), base, series, optimize.ParamSet{"fast": 6, "slow": 24}, probes)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Perturbations) != 2 {
		t.Fatalf("expected 2 probes, got %d", len(report.Perturbations))
	}
	if report.Perturbations[0].Err != "" {
		t.Fatalf("noop probe failed: %s", report.Perturbations[0].Err)
	}
	if report.Perturbations[0].Degradation != 0 {
		t.Fatalf("noop probe degraded by %v", report.Perturbations[0].Degradation)
	}
	if report.Perturbations[1].Err == "" {
		t.Fatal("broken probe must record its error")
	}
}

func TestStandardPerturbationsCoverCosts(t *testing.T) {
	probes := StandardPerturbations(time.Hour)
	if len(probes) != 5 {
		t.Fatalf("expected 5 standard probes, got %d", len(probes))
	}
	cfg := engine.Config{SlippagePercent: 0.1, CommissionPercent: 0.2}
	got := probes[0].Apply(cfg)
	if got.SlippagePercent != 0.15 {
		t.Fatalf("slippage probe produced %v", got.SlippagePercent)
	}
	if cfg.SlippagePercent != 0.1 {
		t.Fatal("probe must not mutate the input config")
	}
}
