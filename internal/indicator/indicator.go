// Package indicator computes technical indicators over price arrays. Every
// output is aligned 1:1 with its input; leading entries without enough
// history are NaN.
package indicator

import (
	"errors"
	"math"
)

var (
	// ErrInvalidPeriod is returned for non-positive periods.
	ErrInvalidPeriod = errors.New("period must be a positive integer")
	// ErrInsufficientData is returned when the input is shorter than the lookback.
	ErrInsufficientData = errors.New("insufficient data for indicator")
	// ErrLengthMismatch is returned when high/low/close arrays differ in length.
	ErrLengthMismatch = errors.New("input arrays must have the same length")
)

// Provider is the numeric contract strategies depend on.
type Provider interface {
	RSI(closes []float64, period int) ([]float64, error)
	MACD(closes []float64, fast, slow, signal int) (MACDResult, error)
	Stochastic(high, low, closes []float64, fastK, slowK, slowD int) (StochasticResult, error)
	EMA(closes []float64, period int) ([]float64, error)
}

// Default is the Provider backed by this package's calculations.
type Default struct{}

var _ Provider = Default{}

func (Default) RSI(closes []float64, period int) ([]float64, error) {
	return CalculateRSI(closes, period)
}

func (Default) MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	return CalculateMACD(closes, fast, slow, signal)
}

func (Default) Stochastic(high, low, closes []float64, fastK, slowK, slowD int) (StochasticResult, error) {
	return CalculateStochastic(high, low, closes, fastK, slowK, slowD)
}

func (Default) EMA(closes []float64, period int) ([]float64, error) {
	return CalculateEMA(closes, period)
}

// Last returns the final element of values and whether it is defined.
func Last(values []float64) (float64, bool) {
	return At(values, len(values)-1)
}

// At returns values[i] and whether it is in range and not NaN.
func At(values []float64, i int) (float64, bool) {
	if i < 0 || i >= len(values) {
		return math.NaN(), false
	}
	v := values[i]
	return v, !math.IsNaN(v)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
