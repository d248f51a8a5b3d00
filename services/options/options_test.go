package options

import (
	"context"
	"math"
	"testing"
	"time"

	"strategy-backtest/services/engine"
)

func daySeries(n int, price func(i int) float64) engine.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(engine.Series, n)
	for i := range s {
		px := price(i)
		s[i] = engine.Candle{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      px, High: px + 0.5, Low: px - 0.5, Close: px,
			Volume: 1000,
		}
	}
	return s
}

func TestBlackScholesPutCallParity(t *testing.T) {
	spot, strike, tt, vol, rate := 100.0, 105.0, 0.5, 0.3, 0.02
	call, _ := BlackScholes(Call, spot, strike, tt, vol, rate)
	put, _ := BlackScholes(Put, spot, strike, tt, vol, rate)
	// C - P = S - K*exp(-rT)
	want := spot - strike*math.Exp(-rate*tt)
	if math.Abs((call-put)-want) > 1e-9 {
		t.Fatalf("parity violated: C-P = %v, want %v", call-put, want)
	}
}

func TestBlackScholesExpiredIsIntrinsic(t *testing.T) {
	price, g := BlackScholes(Call, 110, 100, 0, 0.3, 0.02)
	if price != 10 {
		t.Fatalf("expired ITM call = %v, want intrinsic 10", price)
	}
	if g.Delta != 1 {
		t.Fatalf("expired ITM call delta = %v, want 1", g.Delta)
	}
	price, _ = BlackScholes(Put, 110, 100, 0, 0.3, 0.02)
	if price != 0 {
		t.Fatalf("expired OTM put = %v, want 0", price)
	}
}

func TestBlackScholesGreekSigns(t *testing.T) {
	_, g := BlackScholes(Call, 100, 100, 0.25, 0.3, 0.02)
	if g.Delta <= 0 || g.Delta >= 1 {
		t.Fatalf("ATM call delta = %v, want in (0,1)", g.Delta)
	}
	if g.Gamma <= 0 {
		t.Fatalf("gamma = %v, want positive", g.Gamma)
	}
	if g.Theta >= 0 {
		t.Fatalf("long option theta = %v, want negative", g.Theta)
	}
	if g.Vega <= 0 {
		t.Fatalf("vega = %v, want positive", g.Vega)
	}
}

func TestLongCallExpiresWorthless(t *testing.T) {
	series := daySeries(30, func(i int) float64 { return 100 })
	expiry := series[10].Timestamp
	src := &ScriptedSource{Orders: map[int]Contract{
		0: {Type: Call, Side: LongOption, Strike: 120, Expiry: expiry, Contracts: 1},
	}}
	cfg := Config{Symbol: "TEST", InitialCapital: 10000}
	res, err := NewEngine(nil).Run(context.Background(), cfg, series, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Outcome != "expired" {
		t.Fatalf("outcome = %q, want expired", tr.Outcome)
	}
	if tr.ExitPrice != 0 {
		t.Fatalf("worthless expiry settled at %v", tr.ExitPrice)
	}
	// The buyer loses exactly the premium.
	if tr.PnL >= 0 {
		t.Fatalf("pnl = %v, want negative", tr.PnL)
	}
	if math.Abs(res.FinalEquity-(10000+tr.PnL)) > 1e-9 {
		t.Fatalf("final equity %v inconsistent with pnl %v", res.FinalEquity, tr.PnL)
	}
}

func TestLongCallExercisedITM(t *testing.T) {
	// Price jumps above the strike before expiry and stays there.
	series := daySeries(30, func(i int) float64 {
		if i >= 5 {
			return 130
		}
		return 100
	})
	expiry := series[10].Timestamp
	src := &ScriptedSource{Orders: map[int]Contract{
		0: {Type: Call, Side: LongOption, Strike: 110, Expiry: expiry, Contracts: 1},
	}}
	res, err := NewEngine(nil).Run(context.Background(), Config{InitialCapital: 10000}, series, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Outcome != "exercised" {
		t.Fatalf("outcome = %q, want exercised", tr.Outcome)
	}
	if tr.ExitPrice != 20 {
		t.Fatalf("exercise value = %v, want intrinsic 20", tr.ExitPrice)
	}
}

func TestShortCallAssignedEarly(t *testing.T) {
	series := daySeries(30, func(i int) float64 {
		if i >= 3 {
			return 120
		}
		return 100
	})
	expiry := series[25].Timestamp
	src := &ScriptedSource{Orders: map[int]Contract{
		0: {Type: Call, Side: ShortOption, Strike: 105, Expiry: expiry, Contracts: 1},
	}}
	res, err := NewEngine(nil).Run(context.Background(), Config{InitialCapital: 10000}, series, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	// 120 vs strike 105: 14% ITM, past the 5% default assignment threshold.
	if res.Trades[0].Outcome != "assigned" {
		t.Fatalf("outcome = %q, want assigned", res.Trades[0].Outcome)
	}
}

func TestOptionsRunDeterministic(t *testing.T) {
	series := daySeries(40, func(i int) float64 { return 100 + float64(i%7) })
	expiry := series[30].Timestamp
	src := &ScriptedSource{Orders: map[int]Contract{
		2: {Type: Put, Side: LongOption, Strike: 100, Expiry: expiry, Contracts: 2},
	}}
	cfg := Config{InitialCapital: 10000, Volatility: 0.25}
	a, err := NewEngine(nil).Run(context.Background(), cfg, series, src)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := NewEngine(nil).Run(context.Background(), cfg, series, src)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a.FinalEquity != b.FinalEquity || len(a.Lifecycle) != len(b.Lifecycle) {
		t.Fatal("identical inputs must replay identically")
	}
}

func TestOptionsInsufficientData(t *testing.T) {
	series := daySeries(5, func(i int) float64 { return 100 })
	_, err := NewEngine(nil).Run(context.Background(), Config{InitialCapital: 10000}, series, &ScriptedSource{})
	if err == nil {
		t.Fatal("expected insufficient data error")
	}
}
