package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

// money formats a float money amount with two fixed decimals.
func money(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// WriteTradesCSV renders the closed-trade ledger. Money columns go through
// decimal so reports round consistently.
func WriteTradesCSV(w io.Writer, res *engine.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "symbol", "side", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "exit_reason"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range res.Trades {
		exitTime := ""
		if t.Closed() {
			exitTime = t.ExitTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			t.ID,
			t.Symbol,
			t.Side.String(),
			t.EntryTime.UTC().Format(time.RFC3339),
			exitTime,
			money(t.EntryPrice),
			money(t.ExitPrice),
			decimal.NewFromFloat(t.Quantity).String(),
			money(t.PnL),
			t.ExitReason,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV renders the equity and drawdown curves side by side.
func WriteEquityCSV(w io.Writer, res *engine.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "equity", "drawdown_pct"}); err != nil {
		return err
	}
	for i, pt := range res.EquityCurve {
		dd := 0.0
		if i < len(res.DrawdownCurve) {
			dd = res.DrawdownCurve[i].Drawdown
		}
		row := []string{
			pt.Timestamp.UTC().Format(time.RFC3339),
			money(pt.Equity),
			fmt.Sprintf("%.4f", dd),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonBundle mirrors metrics.Bundle but replaces non-finite floats with the
// strings "inf"/"-inf", matching existing reports instead of failing to
// marshal.
type jsonSafeFloat float64

func (f jsonSafeFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 1) {
		return json.Marshal("inf")
	}
	if math.IsInf(v, -1) {
		return json.Marshal("-inf")
	}
	if math.IsNaN(v) {
		return json.Marshal("nan")
	}
	return json.Marshal(v)
}

// WriteJSON renders the record (result + metrics) as JSON. Profit factor
// and friends may legitimately be infinite.
func WriteJSON(w io.Writer, rec *Record) error {
	type safeRisk struct {
		MaxDrawdown        jsonSafeFloat `json:"maxDrawdown"`
		MaxDrawdownPercent jsonSafeFloat `json:"maxDrawdownPercent"`
		SharpeRatio        jsonSafeFloat `json:"sharpeRatio"`
		SortinoRatio       jsonSafeFloat `json:"sortinoRatio"`
		CalmarRatio        jsonSafeFloat `json:"calmarRatio"`
		ProfitFactor       jsonSafeFloat `json:"profitFactor"`
		UlcerIndex         jsonSafeFloat `json:"ulcerIndex"`
		PainRatio          jsonSafeFloat `json:"painRatio"`
		RecoveryFactor     jsonSafeFloat `json:"recoveryFactor"`
		TailRatio          jsonSafeFloat `json:"tailRatio"`
	}
	payload := struct {
		ID        string              `json:"id"`
		CreatedAt time.Time           `json:"createdAt"`
		Tags      []string            `json:"tags"`
		Summary   metrics.Summary     `json:"summary"`
		Trades    metrics.TradeStats  `json:"tradeStats"`
		Risk      safeRisk            `json:"riskMetrics"`
		Result    *engine.Result      `json:"result"`
	}{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		Tags:      rec.Tags,
		Result:    rec.Result,
	}
	if rec.Bundle != nil {
		payload.Summary = rec.Bundle.Summary
		payload.Trades = rec.Bundle.TradeStats
		r := rec.Bundle.RiskMetrics
		payload.Risk = safeRisk{
			MaxDrawdown:        jsonSafeFloat(r.MaxDrawdown),
			MaxDrawdownPercent: jsonSafeFloat(r.MaxDrawdownPercent),
			SharpeRatio:        jsonSafeFloat(r.SharpeRatio),
			SortinoRatio:       jsonSafeFloat(r.SortinoRatio),
			CalmarRatio:        jsonSafeFloat(r.CalmarRatio),
			ProfitFactor:       jsonSafeFloat(r.ProfitFactor),
			UlcerIndex:         jsonSafeFloat(r.UlcerIndex),
			PainRatio:          jsonSafeFloat(r.PainRatio),
			RecoveryFactor:     jsonSafeFloat(r.RecoveryFactor),
			TailRatio:          jsonSafeFloat(r.TailRatio),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// RenderSummaryTable builds the human-readable report table.
func RenderSummaryTable(rec *Record) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	if rec.Bundle == nil {
		return t.Render()
	}
	s := rec.Bundle.Summary
	ts := rec.Bundle.TradeStats
	r := rec.Bundle.RiskMetrics

	var pf string
	if math.IsInf(r.ProfitFactor, 1) {
		pf = "inf"
	} else {
		pf = fmt.Sprintf("%.2f", r.ProfitFactor)
	}
	t.AppendRows([]table.Row{
		{"Symbol", s.Symbol},
		{"Period", fmt.Sprintf("%s .. %s (%d bars)",
			s.Period.Start.UTC().Format("2006-01-02"), s.Period.End.UTC().Format("2006-01-02"), s.Period.Bars)},
		{"Initial capital", money(s.InitialCapital)},
		{"Final capital", money(s.FinalCapital)},
		{"Total return", fmt.Sprintf("%s (%.2f%%)", money(s.TotalReturn), s.TotalReturnPercent)},
		{"Annualized return", fmt.Sprintf("%.2f%%", s.AnnualizedReturn*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Trades", ts.TotalTrades},
		{"Win rate", fmt.Sprintf("%.1f%%", ts.WinRate*100)},
		{"Avg win / loss", fmt.Sprintf("%s / %s", money(ts.AvgWin), money(ts.AvgLoss))},
		{"Largest win / loss", fmt.Sprintf("%s / %s", money(ts.LargestWin), money(ts.LargestLoss))},
		{"Expectancy", money(ts.Expectancy)},
		{"Avg holding (h)", fmt.Sprintf("%.1f", ts.AvgHoldingPeriod)},
		{"Streaks (win/loss)", fmt.Sprintf("%d / %d", ts.MaxWinStreak, ts.MaxLossStreak)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max drawdown", fmt.Sprintf("%s (%.2f%%)", money(r.MaxDrawdown), r.MaxDrawdownPercent)},
		{"Sharpe", fmt.Sprintf("%.2f", r.SharpeRatio)},
		{"Sortino", fmt.Sprintf("%.2f", r.SortinoRatio)},
		{"Calmar", fmt.Sprintf("%.2f", r.CalmarRatio)},
		{"Profit factor", pf},
		{"Ulcer index", fmt.Sprintf("%.2f", r.UlcerIndex)},
		{"Pain ratio", fmt.Sprintf("%.2f", r.PainRatio)},
		{"Recovery factor", fmt.Sprintf("%.2f", r.RecoveryFactor)},
		{"Tail ratio", fmt.Sprintf("%.2f", r.TailRatio)},
	})
	return t.Render()
}
