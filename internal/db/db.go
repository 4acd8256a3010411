// Package db
package db

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/strategy"
)

var ErrNotFound = errors.New("not found")

// SignalRecord is one emitted trading signal.
type SignalRecord struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Strategy   strategy.Type   `json:"strategy"`
	Signal     strategy.Signal `json:"signal"`
	Reason     string          `json:"reason"`
	SizingHint *float64        `json:"sizing_hint,omitempty"`
	Price      float64         `json:"price"`
	BarTime    time.Time       `json:"bar_time"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ReportMeta identifies the market a backtest ran on.
type ReportMeta struct {
	Symbol    string
	Timeframe string
}

// Storage is the interface for all persistent storage.
type Storage interface {
	// GetCandles returns candles in [start, end) ordered by time. A zero
	// bound is open; an empty source matches any source.
	GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error)
	SaveCandles(ctx context.Context, candles []candle.Candle) error

	// SaveBacktestReport upserts by run id.
	SaveBacktestReport(ctx context.Context, meta ReportMeta, report performance.Report) error
	GetBacktestReport(ctx context.Context, runID string) (*performance.Report, error)

	SaveSignal(ctx context.Context, rec SignalRecord) (int64, error)
}
