//! Data Generator - Creates sample OHLCV data for testing
//!
//! Generates a synthetic candle series with alternating trend and chop
//! regimes. Deterministic under a fixed seed.

package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"strategy-backtest/services/engine"
)

func main() {
	var (
		out      = flag.String("out", "candles.csv", "Output CSV file")
		bars     = flag.Int("bars", 2000, "Number of bars to generate")
		seed     = flag.Int64("seed", 42, "Random seed")
		price    = flag.Float64("price", 100.0, "Starting price")
		interval = flag.Duration("interval", time.Hour, "Bar interval")
		start    = flag.String("start", "2024-01-01T00:00:00Z", "First bar timestamp (RFC3339)")
	)
	flag.Parse()

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -start: %v\n", err)
		os.Exit(1)
	}

	series := Generate(*bars, *price, startTime, *interval, *seed)

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer f.Close()
	if err := engine.WriteCSV(f, series); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bars to %s (%s .. %s)\n",
		len(series), *out,
		series.Start().Format(time.RFC3339), series.End().Format(time.RFC3339))
}

// Generate builds a random walk with regime switches every 100-300 bars.
// Trending regimes add drift; chop regimes are mean reverting.
func Generate(bars int, startPrice float64, startTime time.Time, interval time.Duration, seed int64) engine.Series {
	rng := rand.New(rand.NewSource(seed))
	series := make(engine.Series, 0, bars)

	price := startPrice
	drift := 0.0
	regimeLeft := 0
	for i := 0; i < bars; i++ {
		if regimeLeft == 0 {
			regimeLeft = 100 + rng.Intn(200)
			switch rng.Intn(3) {
			case 0:
				drift = 0.0008 + rng.Float64()*0.0008
			case 1:
				drift = -0.0008 - rng.Float64()*0.0008
			default:
				drift = 0
			}
		}
		regimeLeft--

		ret := drift + rng.NormFloat64()*0.004
		open := price
		close := open * (1 + ret)
		spread := math.Abs(close-open) + open*0.001*rng.Float64()
		high := math.Max(open, close) + spread*rng.Float64()
		low := math.Min(open, close) - spread*rng.Float64()
		if low <= 0 {
			low = math.Min(open, close) * 0.999
		}
		volume := 500 + rng.Float64()*1500

		series = append(series, engine.Candle{
			Timestamp: startTime.Add(time.Duration(i) * interval),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
		price = close
	}
	return series
}
