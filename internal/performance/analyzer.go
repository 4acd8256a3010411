// Package performance turns a finished backtest into a report. Every function
// here is pure: it reads the equity curve and transactions and nothing else.
package performance

import (
	"math"
	"time"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/strategy"
)

// TradingDaysPerYear annualizes daily Sharpe ratios.
const TradingDaysPerYear = 252

// Report is the immutable summary of one backtest run. Degenerate metrics are
// reported as 0.
type Report struct {
	RunID          string                 `json:"run_id"`
	Strategy       strategy.Type          `json:"strategy"`
	InitialValue   float64                `json:"initial_value"`
	FinalValue     float64                `json:"final_value"`
	SharpeRatio    float64                `json:"sharpe_ratio"`
	TotalReturnPct float64                `json:"total_return_pct"`
	MaxDrawdownPct float64                `json:"max_drawdown_pct"`
	ROIPct         float64                `json:"roi_pct"`
	AnnualROIPct   float64                `json:"annual_roi_pct"`
	TradeCount     int                    `json:"trade_count"`
	WinRate        float64                `json:"win_rate"`
	ProfitFactor   float64                `json:"profit_factor"`
	SkippedOrders  int                    `json:"skipped_orders"`
	Transactions   []backtest.Transaction `json:"transactions"`
	EquityCurve    []backtest.EquityPoint `json:"equity_curve"`
}

// Options tunes the analysis.
type Options struct {
	// RiskFreeRate is the annual risk-free rate as a fraction, e.g. 0.03.
	RiskFreeRate float64
}

// Analyze builds the report for res.
func Analyze(res backtest.Result, opts Options) Report {
	values := make([]float64, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		values[i] = p.Value
	}

	winRate, profitFactor := TradeStats(res.Transactions)

	return Report{
		RunID:          res.RunID,
		Strategy:       res.Strategy,
		InitialValue:   res.InitialValue,
		FinalValue:     res.FinalValue,
		SharpeRatio:    SharpeRatio(Returns(values), opts.RiskFreeRate),
		TotalReturnPct: TotalReturnPct(res.InitialValue, res.FinalValue),
		MaxDrawdownPct: MaxDrawdownPct(values),
		ROIPct:         ROIPct(res.InitialValue, res.FinalValue),
		AnnualROIPct:   AnnualROIPct(res.InitialValue, res.FinalValue, res.Duration()),
		TradeCount:     len(res.Transactions),
		WinRate:        winRate,
		ProfitFactor:   profitFactor,
		SkippedOrders:  res.SkippedOrders,
		Transactions:   res.Transactions,
		EquityCurve:    res.EquityCurve,
	}
}

// ROIPct is (final - initial) / initial * 100.
func ROIPct(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// TotalReturnPct is the log return over the whole run, in percent.
func TotalReturnPct(initial, final float64) float64 {
	if initial <= 0 || final <= 0 {
		return 0
	}
	return math.Log(final/initial) * 100
}

// AnnualROIPct compounds the ROI over the calendar span. Spans shorter than a
// day report 0.
func AnnualROIPct(initial, final float64, span time.Duration) float64 {
	days := span.Hours() / 24
	if initial <= 0 || days < 1 {
		return 0
	}
	growth := final / initial
	if growth <= 0 {
		return -100
	}
	years := days / 365
	return (math.Pow(growth, 1/years) - 1) * 100
}

// Returns are the simple bar-over-bar returns of an equity curve.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// SharpeRatio is sqrt(252) * mean(excess) / stdev(returns), with the sample
// standard deviation. It is 0 for fewer than two returns or zero deviation.
func SharpeRatio(returns []float64, annualRiskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	dailyRiskFree := annualRiskFree / TradingDaysPerYear

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * (mean - dailyRiskFree) / std
}

// MaxDrawdownPct is the largest decline from a running peak, in percent.
func MaxDrawdownPct(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	maxDD := 0.0
	for _, v := range values[1:] {
		if v > peak {
			peak = v
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// TradeStats returns the win rate (percent of closing trades with positive
// PnL) and the profit factor (gross profit over gross loss, 0 without losses).
func TradeStats(txs []backtest.Transaction) (winRate, profitFactor float64) {
	var closes, wins int
	var profit, loss float64
	for _, tx := range txs {
		if tx.IsBuy() {
			continue
		}
		closes++
		switch {
		case tx.PnL > 0:
			wins++
			profit += tx.PnL
		case tx.PnL < 0:
			loss -= tx.PnL
		}
	}
	if closes > 0 {
		winRate = float64(wins) / float64(closes) * 100
	}
	if loss > 0 {
		profitFactor = profit / loss
	}
	return winRate, profitFactor
}
