package strategy

import (
	"math"

	"github.com/stretchr/testify/mock"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
)

// mockProvider lets tests dictate indicator outputs directly.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RSI(closes []float64, period int) ([]float64, error) {
	args := m.Called(closes, period)
	return args.Get(0).([]float64), args.Error(1)
}

func (m *mockProvider) MACD(closes []float64, fast, slow, signal int) (indicator.MACDResult, error) {
	args := m.Called(closes, fast, slow, signal)
	return args.Get(0).(indicator.MACDResult), args.Error(1)
}

func (m *mockProvider) Stochastic(high, low, closes []float64, fastK, slowK, slowD int) (indicator.StochasticResult, error) {
	args := m.Called(high, low, closes, fastK, slowK, slowD)
	return args.Get(0).(indicator.StochasticResult), args.Error(1)
}

func (m *mockProvider) EMA(closes []float64, period int) ([]float64, error) {
	args := m.Called(closes, period)
	return args.Get(0).([]float64), args.Error(1)
}

// series returns n values: a NaN prefix followed by tail.
func series(n int, tail ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	copy(out[n-len(tail):], tail)
	return out
}

// flatWindow returns a window of n identical bars.
func flatWindow(n int, price float64) candle.Window {
	w := candle.Window{Close: make([]float64, n), High: make([]float64, n), Low: make([]float64, n)}
	for i := 0; i < n; i++ {
		w.Close[i] = price
		w.High[i] = price
		w.Low[i] = price
	}
	return w
}
