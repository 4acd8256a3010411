package indicator

import (
	"fmt"
	"math"
)

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// CalculateMACD returns fast EMA minus slow EMA, the EMA of that line over
// signal periods, and their difference. The MACD line is defined from index
// slow-1, the signal line from slow+signal-2.
func CalculateMACD(prices []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, fmt.Errorf("MACD: %w: fast=%d slow=%d signal=%d", ErrInvalidPeriod, fast, slow, signal)
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("MACD: %w: fast period %d must be below slow period %d", ErrInvalidPeriod, fast, slow)
	}
	if len(prices) < slow+signal-1 {
		return MACDResult{}, fmt.Errorf("MACD: %w: need %d prices, got %d", ErrInsufficientData, slow+signal-1, len(prices))
	}

	fastEMA, err := CalculateEMA(prices, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := CalculateEMA(prices, slow)
	if err != nil {
		return MACDResult{}, err
	}

	line := nanSlice(len(prices))
	for i := slow - 1; i < len(prices); i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	sig, err := CalculateEMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}

	hist := nanSlice(len(prices))
	for i := range hist {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Hist: hist}, nil
}
