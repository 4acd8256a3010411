package candle

import (
	"errors"
	"fmt"
	"time"
)

// DefaultWindowSize is the number of trailing bars every strategy looks at.
const DefaultWindowSize = 50

// ErrWindowOutOfRange is returned when the requested window end is not a
// valid candle index.
var ErrWindowOutOfRange = errors.New("window end out of range")

// Window is the trailing slice of prices ending at the evaluation bar. The
// last element of each array is the bar being evaluated.
type Window struct {
	Close []float64
	High  []float64
	Low   []float64
	Time  time.Time
}

// NewWindow builds the window of at most size bars ending at candles[end].
// Nothing after end is read.
func NewWindow(candles []Candle, end, size int) (Window, error) {
	if end < 0 || end >= len(candles) {
		return Window{}, fmt.Errorf("%w: end=%d, candles=%d", ErrWindowOutOfRange, end, len(candles))
	}
	if size <= 0 {
		size = DefaultWindowSize
	}
	start := end - size + 1
	if start < 0 {
		start = 0
	}

	n := end - start + 1
	w := Window{
		Close: make([]float64, n),
		High:  make([]float64, n),
		Low:   make([]float64, n),
		Time:  candles[end].Timestamp,
	}
	for i := 0; i < n; i++ {
		c := candles[start+i]
		w.Close[i] = c.Close
		w.High[i] = c.High
		w.Low[i] = c.Low
	}
	return w, nil
}

// Len returns the number of bars in the window.
func (w Window) Len() int { return len(w.Close) }

// LastClose returns the close of the evaluation bar.
func (w Window) LastClose() float64 {
	if len(w.Close) == 0 {
		return 0
	}
	return w.Close[len(w.Close)-1]
}
