package indicator

import (
	"fmt"
	"math"
)

// StochasticResult holds the results of stochastic oscillator calculation
type StochasticResult struct {
	K []float64 // slow %K line values
	D []float64 // slow %D line values
}

// CalculateStochastic calculates the Stochastic Oscillator (%K and %D):
// k = sma(100 * (close - lowest_low) / (highest_high - lowest_low), slowK)
// d = sma(k, slowD)
//
// Parameters:
// - high, low, closes: price arrays of equal length
// - fastK: lookback for the raw %K range
// - slowK: smoothing period for %K
// - slowD: smoothing period for %D
func CalculateStochastic(high, low, closes []float64, fastK, slowK, slowD int) (StochasticResult, error) {
	if len(high) != len(closes) || len(low) != len(closes) {
		return StochasticResult{}, fmt.Errorf("Stochastic: %w: high=%d low=%d close=%d",
			ErrLengthMismatch, len(high), len(low), len(closes))
	}
	if fastK <= 0 || slowK <= 0 || slowD <= 0 {
		return StochasticResult{}, fmt.Errorf("Stochastic: %w: fastK=%d slowK=%d slowD=%d",
			ErrInvalidPeriod, fastK, slowK, slowD)
	}
	if len(closes) < fastK {
		return StochasticResult{}, fmt.Errorf("Stochastic: %w: need at least %d candles for fastK, got %d",
			ErrInsufficientData, fastK, len(closes))
	}

	n := len(closes)
	raw := nanSlice(n)

	for i := fastK - 1; i < n; i++ {
		startIdx := i - (fastK - 1)
		lowest := low[startIdx]
		highest := high[startIdx]
		for j := startIdx + 1; j <= i; j++ {
			lowest = math.Min(lowest, low[j])
			highest = math.Max(highest, high[j])
		}

		if highest == lowest {
			raw[i] = 50.0 // no range
		} else {
			raw[i] = 100.0 * (closes[i] - lowest) / (highest - lowest)
		}
	}

	k, err := CalculateSMA(raw, slowK)
	if err != nil {
		return StochasticResult{}, err
	}
	d, err := CalculateSMA(k, slowD)
	if err != nil {
		return StochasticResult{}, err
	}
	return StochasticResult{K: k, D: d}, nil
}
