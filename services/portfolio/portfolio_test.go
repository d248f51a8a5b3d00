package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"strategy-backtest/services/engine"
)

func flatSeries(n int, price float64) engine.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(engine.Series, n)
	for i := range s {
		s[i] = engine.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return s
}

func baseConfig() Config {
	return Config{Base: engine.Config{InitialCapital: 10000, PositionSizePercent: 100, Leverage: 1}}
}

func TestInvalidAllocationRejectedBeforeRun(t *testing.T) {
	assets := []Asset{
		{Symbol: "AAA", WeightPercent: 60, Series: flatSeries(25, 100), Source: &engine.ScriptedSource{}},
		{Symbol: "BBB", WeightPercent: 41, Series: flatSeries(25, 100), Source: &engine.ScriptedSource{}},
	}
	_, err := New(engine.NewRunner(nil), baseConfig(), assets, nil)
	var alloc *InvalidAllocationError
	if !errors.As(err, &alloc) {
		t.Fatalf("expected InvalidAllocationError, got %v", err)
	}
	if alloc.Total != 101 {
		t.Fatalf("reported total %v, want 101", alloc.Total)
	}
}

func TestEmptyAllocationRejected(t *testing.T) {
	if _, err := New(engine.NewRunner(nil), baseConfig(), nil, nil); err == nil {
		t.Fatal("expected error for no assets")
	}
}

func TestFlatPortfolioPreservesCapital(t *testing.T) {
	assets := []Asset{
		{Symbol: "AAA", WeightPercent: 60, Series: flatSeries(25, 100), Source: &engine.ScriptedSource{}},
		{Symbol: "BBB", WeightPercent: 40, Series: flatSeries(25, 50), Source: &engine.ScriptedSource{}},
	}
	eng, err := New(engine.NewRunner(nil), baseConfig(), assets, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if math.Abs(res.FinalEquity-10000) > 1e-9 {
		t.Fatalf("final equity %v, want 10000", res.FinalEquity)
	}
	if len(res.Assets) != 2 {
		t.Fatalf("expected 2 asset results, got %d", len(res.Assets))
	}
	for _, a := range res.Assets {
		if a.Contribution != 0 {
			t.Fatalf("asset %s contributed %v on flat prices", a.Symbol, a.Contribution)
		}
	}
	if len(res.Correlation) != 2 || res.Correlation[0][0] != 1 {
		t.Fatalf("correlation matrix malformed: %v", res.Correlation)
	}
}

func TestPortfolioCombinesContributions(t *testing.T) {
	// Asset AAA books one +5% take-profit on its 6000 share of the pool.
	seriesA := flatSeries(25, 100)
	seriesA[5].High = 106
	seriesA[5].Close = 105
	for i := 6; i < 25; i++ {
		seriesA[i].Open, seriesA[i].High, seriesA[i].Low, seriesA[i].Close = 105, 105, 105, 105
	}
	srcA := &engine.ScriptedSource{Signals: map[int]engine.Signal{
		0: {Side: engine.Long, TakeProfit: 105},
	}}
	assets := []Asset{
		{Symbol: "AAA", WeightPercent: 60, Series: seriesA, Source: srcA},
		{Symbol: "BBB", WeightPercent: 40, Series: flatSeries(25, 50), Source: &engine.ScriptedSource{}},
	}
	eng, err := New(engine.NewRunner(nil), baseConfig(), assets, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 6000 notional, +5 on 60 units = +300.
	if math.Abs(res.FinalEquity-10300) > 1e-9 {
		t.Fatalf("final equity %v, want 10300", res.FinalEquity)
	}
	if math.Abs(res.Assets[0].Contribution-300) > 1e-9 {
		t.Fatalf("AAA contribution %v, want 300", res.Assets[0].Contribution)
	}
	if res.Assets[1].Contribution != 0 {
		t.Fatalf("BBB contribution %v, want 0", res.Assets[1].Contribution)
	}
	if res.TotalReturnPct <= 0 {
		t.Fatalf("total return %v, want positive", res.TotalReturnPct)
	}
}

func TestRebalanceCounting(t *testing.T) {
	cfg := baseConfig()
	cfg.Rebalance = RebalanceDaily
	assets := []Asset{
		{Symbol: "AAA", WeightPercent: 50, Series: flatSeries(73, 100), Source: &engine.ScriptedSource{}},
		{Symbol: "BBB", WeightPercent: 50, Series: flatSeries(73, 100), Source: &engine.ScriptedSource{}},
	}
	eng, err := New(engine.NewRunner(nil), cfg, assets, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 73 hourly bars span three full days.
	if res.Rebalances != 3 {
		t.Fatalf("rebalances = %d, want 3", res.Rebalances)
	}
}
