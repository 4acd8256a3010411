package indicator

import (
	"fmt"
	"math"
)

// CalculateEMA returns the exponential moving average seeded with the simple
// average of the first period values. Smoothing factor is 2/(period+1).
// NaN inputs before the first defined value are skipped, which lets the
// function smooth series that themselves have a NaN prefix.
func CalculateEMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("EMA: %w: %d", ErrInvalidPeriod, period)
	}

	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return nil, fmt.Errorf("EMA: %w: need %d values, got %d", ErrInsufficientData, period, len(values)-start)
	}

	ema := nanSlice(len(values))
	seed := start + period - 1

	sum := 0.0
	for i := start; i <= seed; i++ {
		sum += values[i]
	}
	ema[seed] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := seed + 1; i < len(values); i++ {
		ema[i] = (values[i]-ema[i-1])*k + ema[i-1]
	}
	return ema, nil
}

// CalculateSMA returns the simple moving average. Any NaN inside a window
// makes that output NaN.
func CalculateSMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("SMA: %w: %d", ErrInvalidPeriod, period)
	}
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}
