package validate

import (
	"context"
	"fmt"
	"math"
	"testing"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/optimize"
)

func TestNeighborValuesRange(t *testing.T) {
	p := optimize.Parameter{Name: "x", Min: 2, Max: 10, Step: 2}

	got := neighborValues(p, 6, 2)
	want := map[float64]bool{2: true, 4: true, 8: true, 10: true}
	if len(got) != len(want) {
		t.Fatalf("neighbors of 6 = %v, want the 4 values %v", got, want)
	}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("unexpected neighbor %v in %v", v, got)
		}
	}

	got = neighborValues(p, 2, 2)
	want = map[float64]bool{4: true, 6: true}
	if len(got) != len(want) {
		t.Fatalf("neighbors at the lower edge = %v, want %v", got, want)
	}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("edge neighbor %v escaped the domain: %v", v, got)
		}
	}
}

func TestNeighborValuesSet(t *testing.T) {
	p := optimize.Parameter{Name: "x", Values: []float64{3, 6, 9, 12}}

	got := neighborValues(p, 6, 1)
	if len(got) != 2 {
		t.Fatalf("neighbors of 6 = %v, want exactly the adjacent listed values", got)
	}
	for _, v := range got {
		if v != 3 && v != 9 {
			t.Fatalf("unexpected neighbor %v", v)
		}
	}

	got = neighborValues(p, 12, 2)
	if len(got) != 2 {
		t.Fatalf("neighbors of the last value = %v, want two lower values", got)
	}
	for _, v := range got {
		if v != 9 && v != 6 {
			t.Fatalf("unexpected neighbor %v", v)
		}
	}
}

func TestSensitivityReportShape(t *testing.T) {
	base := engine.Config{Symbol: "TEST", InitialCapital: 10000, PositionSizePercent: 50, Leverage: 1}
	space := optimize.Space{Params: []optimize.Parameter{
		{Name: "fast", Values: []float64{4, 6, 8}},
		{Name: "slow", Min: 18, Max: 30, Step: 6},
	}}
	best := optimize.ParamSet{"fast": 6, "slow": 24}

	sa := NewSensitivityAnalyzer(engine.NewRunner(nil), crossoverFactory, optimize.Objective{Metric: optimize.MetricTotalReturn}, space, nil)
	report, err := sa.Run(context.Background(), base, waveSeries(60), best)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Parameters) != 2 {
		t.Fatalf("parameters = %d, want 2", len(report.Parameters))
	}
	for _, ps := range report.Parameters {
		if ps.Name != "fast" && ps.Name != "slow" {
			t.Fatalf("unexpected parameter %q", ps.Name)
		}
		if ps.Optimum != best[ps.Name] {
			t.Fatalf("parameter %s optimum = %v, want %v", ps.Name, ps.Optimum, best[ps.Name])
		}
		if len(ps.Points) != 2 {
			t.Fatalf("parameter %s points = %v, want 2 neighbors", ps.Name, ps.Points)
		}
		for _, pt := range ps.Points {
			if pt.Err != "" {
				t.Fatalf("parameter %s value %v failed: %s", ps.Name, pt.Value, pt.Err)
			}
			if math.Abs(pt.Delta-(pt.Score-report.BaselineScore)) > 1e-12 {
				t.Fatalf("delta mismatch for %s=%v: %v vs %v - %v", ps.Name, pt.Value, pt.Delta, pt.Score, report.BaselineScore)
			}
			if drop := report.BaselineScore - pt.Score; drop > ps.WorstDrop {
				t.Fatalf("worst drop for %s understates point %v", ps.Name, pt.Value)
			}
		}
		if ps.WorstDrop < 0 {
			t.Fatalf("worst drop negative: %v", ps.WorstDrop)
		}
	}
}

func TestSensitivityNeighborFailureIsolated(t *testing.T) {
	base := engine.Config{Symbol: "TEST", InitialCapital: 10000, PositionSizePercent: 50, Leverage: 1}
	space := optimize.Space{Params: []optimize.Parameter{
		{Name: "fast", Values: []float64{4, 6, 8}},
	}}
	factory := func(cfg engine.Config, ps optimize.ParamSet) (engine.Config, engine.SignalSource, error) {
		if ps["fast"] == 8 {
			return cfg, nil, fmt.Errorf("fast window 8 unavailable")
		}
		return cfg, &engine.CrossoverSource{Fast: int(ps["fast"]), Slow: 24}, nil
	}

	sa := NewSensitivityAnalyzer(engine.NewRunner(nil), factory, optimize.Objective{Metric: optimize.MetricTotalReturn}, space, nil)
	report, err := sa.Run(context.Background(), base, waveSeries(40), optimize.ParamSet{"fast": 6})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Parameters) != 1 || len(report.Parameters[0].Points) != 2 {
		t.Fatalf("unexpected report shape: %+v", report)
	}
	var failed, ok int
	for _, pt := range report.Parameters[0].Points {
		switch {
		case pt.Value == 8 && pt.Err != "":
			failed++
		case pt.Value == 4 && pt.Err == "":
			ok++
		default:
			t.Fatalf("point %+v in unexpected state", pt)
		}
	}
	if failed != 1 || ok != 1 {
		t.Fatalf("failure was not isolated: %+v", report.Parameters[0].Points)
	}
}

func TestSensitivityBaselineFailure(t *testing.T) {
	base := engine.Config{Symbol: "TEST", InitialCapital: 10000, PositionSizePercent: 50, Leverage: 1}
	space := optimize.Space{Params: []optimize.Parameter{{Name: "fast", Values: []float64{4, 6}}}}
	factory := func(cfg engine.Config, ps optimize.ParamSet) (engine.Config, engine.SignalSource, error) {
		return cfg, nil, fmt.Errorf("no source")
	}

	sa := NewSensitivityAnalyzer(engine.NewRunner(nil), factory, optimize.Objective{Metric: optimize.MetricTotalReturn}, space, nil)
	if _, err := sa.Run(context.Background(), base, waveSeries(40), optimize.ParamSet{"fast": 6}); err == nil {
		t.Fatal("expected baseline failure to surface")
	}
}
