package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/performance"
)

// MemoryStorage is an in-process Storage for tests and database-less runs.
type MemoryStorage struct {
	mu sync.RWMutex

	// Candles keyed by symbol|timeframe|timestamp|source
	candles map[string]candle.Candle

	// Reports are stored encoded so callers never share slices with the store.
	reports map[string][]byte

	signals      []SignalRecord
	nextSignalID int64
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles: make(map[string]candle.Candle),
		reports: make(map[string][]byte),
	}
}

func candleKey(symbol, timeframe string, ts time.Time, source string) string {
	return strings.ToUpper(symbol) + "|" + timeframe + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + source
}

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		c.Timestamp = c.Timestamp.UTC()
		m.candles[candleKey(c.Symbol, c.Timeframe, c.Timestamp, c.Source)] = c
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []candle.Candle
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) || c.Timeframe != timeframe {
			continue
		}
		if source != "" && c.Source != source {
			continue
		}
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStorage) SaveBacktestReport(ctx context.Context, meta ReportMeta, report performance.Report) error {
	if report.RunID == "" {
		return fmt.Errorf("save backtest report: empty run id")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", report.RunID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.RunID] = body
	return nil
}

func (m *MemoryStorage) GetBacktestReport(ctx context.Context, runID string) (*performance.Report, error) {
	m.mu.RLock()
	body, ok := m.reports[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backtest report %s: %w", runID, ErrNotFound)
	}

	var report performance.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode backtest report %s: %w", runID, err)
	}
	return &report, nil
}

func (m *MemoryStorage) SaveSignal(ctx context.Context, rec SignalRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSignalID++
	rec.ID = m.nextSignalID
	rec.BarTime = rec.BarTime.UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.signals = append(m.signals, rec)
	return rec.ID, nil
}

// Signals returns a copy of every saved signal in insertion order.
func (m *MemoryStorage) Signals() []SignalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SignalRecord(nil), m.signals...)
}
