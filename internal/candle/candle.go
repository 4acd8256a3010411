// Package candle
package candle

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCandle wraps every single-candle validation failure.
	ErrInvalidCandle = errors.New("invalid candle")
	// ErrDuplicateTimestamp is returned when two candles share a timestamp.
	ErrDuplicateTimestamp = errors.New("duplicate candle timestamp")
	// ErrNotIncreasing is returned when a candle is older than its predecessor.
	ErrNotIncreasing = errors.New("candle timestamps are not strictly increasing")
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol,omitempty"`
	Timeframe string    `json:"timeframe,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrInvalidCandle)
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: prices must be positive", ErrInvalidCandle)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high cannot be less than low", ErrInvalidCandle)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("%w: open price must be between high and low", ErrInvalidCandle)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: close price must be between high and low", ErrInvalidCandle)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume cannot be negative", ErrInvalidCandle)
	}
	return nil
}

// ValidateSeries validates every candle and requires strictly increasing
// timestamps. Gaps between candles are allowed.
func ValidateSeries(candles []Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("candle at index %d: %w", i, err)
		}
		if i == 0 {
			continue
		}
		prev, cur := candles[i-1].Timestamp, candles[i].Timestamp
		switch {
		case cur.Equal(prev):
			return fmt.Errorf("candle at index %d (%s): %w", i, cur.Format(time.RFC3339), ErrDuplicateTimestamp)
		case cur.Before(prev):
			return fmt.Errorf("candle at index %d (%s) precedes %s: %w",
				i, cur.Format(time.RFC3339), prev.Format(time.RFC3339), ErrNotIncreasing)
		}
	}
	return nil
}

// Closes returns the close prices of candles in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
