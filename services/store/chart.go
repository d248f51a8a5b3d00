package store

// Chart-ready shapes for the rendering layer: downsampled curves, a
// monthly-return heatmap, trade scatter points, and histograms.

import (
	"math"
	"sort"
	"time"

	"strategy-backtest/services/engine"
)

type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type HeatmapCell struct {
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	ReturnPercent float64 `json:"returnPercent"`
}

type ScatterPoint struct {
	Timestamp time.Time `json:"timestamp"`
	PnL       float64   `json:"pnl"`
	Side      string    `json:"side"`
}

type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// ChartData is everything a renderer needs for one result.
type ChartData struct {
	Equity         []ChartPoint   `json:"equity"`
	Drawdown       []ChartPoint   `json:"drawdown"`
	MonthlyReturns []HeatmapCell  `json:"monthlyReturns"`
	TradeScatter   []ScatterPoint `json:"tradeScatter"`
	HoldingHours   []HistogramBin `json:"holdingHours"`
	TradeSizes     []HistogramBin `json:"tradeSizes"`
}

// BuildChartData derives the chart payload from a stored record without
// touching the original. maxPoints bounds the downsampled curve length.
func BuildChartData(rec *Record, maxPoints int) *ChartData {
	if maxPoints <= 0 {
		maxPoints = 500
	}
	res := rec.Result
	cd := &ChartData{}
	if res == nil {
		return cd
	}

	eq := make([]ChartPoint, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		eq[i] = ChartPoint{Timestamp: p.Timestamp, Value: p.Equity}
	}
	dd := make([]ChartPoint, len(res.DrawdownCurve))
	for i, p := range res.DrawdownCurve {
		dd[i] = ChartPoint{Timestamp: p.Timestamp, Value: p.Drawdown}
	}
	cd.Equity = downsample(eq, maxPoints)
	cd.Drawdown = downsample(dd, maxPoints)
	cd.MonthlyReturns = monthlyReturns(res.EquityCurve)

	closed := engine.ClosedTrades(res.Trades)
	holding := make([]float64, 0, len(closed))
	sizes := make([]float64, 0, len(closed))
	for _, t := range closed {
		cd.TradeScatter = append(cd.TradeScatter, ScatterPoint{
			Timestamp: t.ExitTime,
			PnL:       t.PnL,
			Side:      t.Side.String(),
		})
		holding = append(holding, t.ExitTime.Sub(t.EntryTime).Hours())
		sizes = append(sizes, t.EntryPrice*t.Quantity)
	}
	cd.HoldingHours = histogram(holding, 10)
	cd.TradeSizes = histogram(sizes, 10)
	return cd
}

// downsample keeps every bucket's extreme point so spikes survive, a
// cheap largest-triangle-style reduction.
func downsample(points []ChartPoint, maxPoints int) []ChartPoint {
	if len(points) <= maxPoints || maxPoints < 3 {
		return points
	}
	out := make([]ChartPoint, 0, maxPoints)
	out = append(out, points[0])
	bucket := float64(len(points)-2) / float64(maxPoints-2)
	for b := 0; b < maxPoints-2; b++ {
		lo := 1 + int(float64(b)*bucket)
		hi := 1 + int(float64(b+1)*bucket)
		if hi > len(points)-1 {
			hi = len(points) - 1
		}
		best := lo
		bestDev := -1.0
		mean := 0.0
		for i := lo; i < hi; i++ {
			mean += points[i].Value
		}
		if hi > lo {
			mean /= float64(hi - lo)
		}
		for i := lo; i < hi; i++ {
			if dev := math.Abs(points[i].Value - mean); dev > bestDev {
				best, bestDev = i, dev
			}
		}
		out = append(out, points[best])
	}
	out = append(out, points[len(points)-1])
	return out
}

// monthlyReturns folds the equity curve into calendar-month cells.
func monthlyReturns(curve []engine.EquityPoint) []HeatmapCell {
	if len(curve) == 0 {
		return nil
	}
	type key struct{ y, m int }
	first := map[key]float64{}
	last := map[key]float64{}
	var keys []key
	for _, p := range curve {
		k := key{p.Timestamp.Year(), int(p.Timestamp.Month())}
		if _, ok := first[k]; !ok {
			first[k] = p.Equity
			keys = append(keys, k)
		}
		last[k] = p.Equity
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].y != keys[j].y {
			return keys[i].y < keys[j].y
		}
		return keys[i].m < keys[j].m
	})
	cells := make([]HeatmapCell, 0, len(keys))
	prevClose := 0.0
	for i, k := range keys {
		open := first[k]
		if i > 0 && prevClose > 0 {
			open = prevClose
		}
		ret := 0.0
		if open > 0 {
			ret = (last[k]/open - 1) * 100
		}
		cells = append(cells, HeatmapCell{Year: k.y, Month: k.m, ReturnPercent: ret})
		prevClose = last[k]
	}
	return cells
}

func histogram(values []float64, bins int) []HistogramBin {
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return []HistogramBin{{Low: lo, High: hi, Count: len(values)}}
	}
	width := (hi - lo) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i] = HistogramBin{Low: lo + float64(i)*width, High: lo + float64(i+1)*width}
	}
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}
