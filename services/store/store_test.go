package store

import (
	"math"
	"strings"
	"testing"
	"time"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

func sampleResult() (*engine.Result, *metrics.Bundle) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]engine.EquityPoint, 48)
	for i := range curve {
		curve[i] = engine.EquityPoint{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Equity:    10000 + float64(i)*20,
		}
	}
	res := &engine.Result{
		RunID:  "run-1",
		Config: engine.Config{Symbol: "BTCUSDT", InitialCapital: 10000},
		Period: engine.Period{Start: start, End: start.Add(47 * time.Hour), Bars: 48},
		Trades: []engine.Trade{
			{ID: "t1", Symbol: "BTCUSDT", Side: engine.Long, EntryPrice: 100, ExitPrice: 105,
				Quantity: 100, EntryTime: start, ExitTime: start.Add(5 * time.Hour), PnL: 500, ExitReason: "take_profit"},
			{ID: "t2", Symbol: "BTCUSDT", Side: engine.Short, EntryPrice: 105, ExitPrice: 100,
				Quantity: 100, EntryTime: start.Add(10 * time.Hour), ExitTime: start.Add(20 * time.Hour), PnL: 440, ExitReason: "signal"},
		},
		EquityCurve:   curve,
		DrawdownCurve: engine.DrawdownFromEquity(curve),
		FinalEquity:   10940,
	}
	return res, metrics.Compute(res)
}

func TestStoreSaveGetDelete(t *testing.T) {
	s := New()
	res, bundle := sampleResult()
	id := s.Save(res, bundle, "cli")
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Result.RunID != "run-1" {
		t.Fatalf("wrong record: %+v", rec)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(id); err == nil {
		t.Fatal("expected not-found after delete")
	}
	if err := s.Delete(id); err == nil {
		t.Fatal("double delete must fail")
	}
}

func TestStoreListMostRecentFirst(t *testing.T) {
	s := New()
	res, bundle := sampleResult()
	first := s.Save(res, bundle)
	second := s.Save(res, bundle)
	got := s.List(0)
	if len(got) != 2 {
		t.Fatalf("list returned %d records", len(got))
	}
	if got[0].ID != second || got[1].ID != first {
		t.Fatal("list not most-recent-first")
	}
	if len(s.List(1)) != 1 {
		t.Fatal("limit not applied")
	}
}

func TestStoreFindByTagAndRetag(t *testing.T) {
	s := New()
	res, bundle := sampleResult()
	id := s.Save(res, bundle, "grid", "btc")
	if len(s.FindByTag("grid")) != 1 {
		t.Fatal("tag search missed the record")
	}
	if err := s.Retag(id, "final"); err != nil {
		t.Fatalf("retag: %v", err)
	}
	if len(s.FindByTag("grid")) != 0 {
		t.Fatal("old tag survived retag")
	}
	if len(s.FindByTag("final")) != 1 {
		t.Fatal("new tag not searchable")
	}
}

func TestStoreHandsOutCopies(t *testing.T) {
	s := New()
	res, bundle := sampleResult()
	id := s.Save(res, bundle)
	rec, _ := s.Get(id)
	rec.Result.Trades[0].PnL = -999
	rec.Tags = append(rec.Tags, "mutated")

	fresh, _ := s.Get(id)
	if fresh.Result.Trades[0].PnL != 500 {
		t.Fatal("stored trade mutated through a returned copy")
	}
	for _, tag := range fresh.Tags {
		if tag == "mutated" {
			t.Fatal("stored tags mutated through a returned copy")
		}
	}
}

func TestStoreCopiesOnSave(t *testing.T) {
	s := New()
	res, bundle := sampleResult()
	id := s.Save(res, bundle)

	res.Trades[0].PnL = -999
	res.EquityCurve[0].Equity = 0
	bundle.Summary.FinalCapital = 0

	rec, _ := s.Get(id)
	if rec.Result.Trades[0].PnL != 500 {
		t.Fatal("stored trade mutated through the caller's pointer")
	}
	if rec.Result.EquityCurve[0].Equity == 0 {
		t.Fatal("stored equity curve mutated through the caller's pointer")
	}
	if rec.Bundle.Summary.FinalCapital == 0 {
		t.Fatal("stored metrics mutated through the caller's pointer")
	}
}

func TestWriteTradesCSVMoneyFormat(t *testing.T) {
	res, _ := sampleResult()
	var buf strings.Builder
	if err := WriteTradesCSV(&buf, res); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "500.00") {
		t.Fatalf("money columns not fixed to two decimals:\n%s", out)
	}
	if !strings.Contains(out, "take_profit") {
		t.Fatal("exit reason missing")
	}
	if len(strings.Split(strings.TrimSpace(out), "\n")) != 3 {
		t.Fatal("expected header plus two rows")
	}
}

func TestWriteJSONMapsInfinity(t *testing.T) {
	res, bundle := sampleResult()
	if !math.IsInf(bundle.RiskMetrics.ProfitFactor, 1) {
		t.Fatalf("fixture should have infinite profit factor, got %v", bundle.RiskMetrics.ProfitFactor)
	}
	rec := &Record{ID: "r", Result: res, Bundle: bundle}
	var buf strings.Builder
	if err := WriteJSON(&buf, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), `"profitFactor": "inf"`) {
		t.Fatalf("infinite profit factor not mapped to \"inf\":\n%s", buf.String())
	}
}

func TestRenderSummaryTable(t *testing.T) {
	res, bundle := sampleResult()
	out := RenderSummaryTable(&Record{ID: "r", Result: res, Bundle: bundle})
	if !strings.Contains(out, "BTCUSDT") {
		t.Fatal("symbol missing from table")
	}
	if !strings.Contains(out, "inf") {
		t.Fatal("infinite profit factor must render as inf")
	}
}

func TestBuildChartDataDownsamples(t *testing.T) {
	res, bundle := sampleResult()
	rec := &Record{ID: "r", Result: res, Bundle: bundle}
	cd := BuildChartData(rec, 10)
	if len(cd.Equity) > 10 {
		t.Fatalf("equity curve not downsampled: %d points", len(cd.Equity))
	}
	if len(cd.TradeScatter) != 2 {
		t.Fatalf("expected 2 scatter points, got %d", len(cd.TradeScatter))
	}
	if len(cd.MonthlyReturns) == 0 {
		t.Fatal("expected monthly return cells")
	}
}

func TestCompareToBenchmark(t *testing.T) {
	res, _ := sampleResult()
	series := make(engine.Series, len(res.EquityCurve))
	for i, pt := range res.EquityCurve {
		px := pt.Equity / 100 // benchmark tracks the strategy exactly
		series[i] = engine.Candle{Timestamp: pt.Timestamp, Open: px, High: px, Low: px, Close: px, Volume: 1}
	}
	cmp := CompareToBenchmark(res, series)
	if cmp == nil {
		t.Fatal("expected comparison")
	}
	if math.Abs(cmp.Correlation-1) > 1e-9 {
		t.Fatalf("identical streams should correlate at 1, got %v", cmp.Correlation)
	}
	if math.Abs(cmp.Beta-1) > 1e-9 {
		t.Fatalf("identical streams should have beta 1, got %v", cmp.Beta)
	}
	if math.Abs(cmp.Alpha) > 1e-9 {
		t.Fatalf("identical streams should have zero alpha, got %v", cmp.Alpha)
	}
}
