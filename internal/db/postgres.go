package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/db/conf"
	"github.com/amirphl/signal-trader/internal/performance"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executeWithTransaction runs fn in the context transaction, or in a new one
// that is committed on success and rolled back on error.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) queryRowWithTransaction(ctx context.Context, query string, args ...any) *sql.Row {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// Default is the Postgres storage.
type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, errors.New("db: nil connection")
	}
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			c := candles[i]
			return fmt.Errorf("invalid candle at index %d for %s %s at %s: %w",
				i, c.Symbol, c.Timeframe, c.Timestamp, err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, timeframe, timestamp, source) DO UPDATE SET
				open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
				close=EXCLUDED.close, volume=EXCLUDED.volume
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, c := range candles {
			_, err := stmt.ExecContext(ctx,
				c.Symbol, c.Timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Source)
			if err != nil {
				return fmt.Errorf("failed to save candle at index %d (%s %s at %s): %w",
					i, c.Symbol, c.Timeframe, c.Timestamp, err)
			}
		}
		return nil
	})
}

func (p *Default) GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT timestamp, open, high, low, close, volume, symbol, timeframe, source
		FROM candles
		WHERE symbol=$1 AND timeframe=$2`)
	args := []any{symbol, timeframe}

	if !start.IsZero() {
		args = append(args, start.UTC())
		fmt.Fprintf(&b, " AND timestamp >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		fmt.Fprintf(&b, " AND timestamp < $%d", len(args))
	}
	if source != "" {
		args = append(args, source)
		fmt.Fprintf(&b, " AND source=$%d", len(args))
	}
	b.WriteString(" ORDER BY timestamp ASC")

	rows, err := p.queryWithTransaction(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles in range: %w", err)
	}
	defer rows.Close()

	var candles []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Symbol, &c.Timeframe, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}
	return candles, nil
}

func (p *Default) SaveBacktestReport(ctx context.Context, meta ReportMeta, report performance.Report) error {
	if _, err := uuid.Parse(report.RunID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", report.RunID, err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", report.RunID, err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_reports (run_id, strategy, symbol, timeframe, roi_pct, sharpe_ratio, max_drawdown_pct, trade_count, report)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id) DO UPDATE SET
				symbol=EXCLUDED.symbol, timeframe=EXCLUDED.timeframe, report=EXCLUDED.report`,
			report.RunID, string(report.Strategy), meta.Symbol, meta.Timeframe,
			report.ROIPct, report.SharpeRatio, report.MaxDrawdownPct, report.TradeCount, body)
		if err != nil {
			return fmt.Errorf("failed to save backtest report %s: %w", report.RunID, err)
		}
		return nil
	})
}

func (p *Default) GetBacktestReport(ctx context.Context, runID string) (*performance.Report, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("backtest report %q: %w", runID, ErrNotFound)
	}

	var body []byte
	err := p.queryRowWithTransaction(ctx, `SELECT report FROM backtest_reports WHERE run_id=$1`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backtest report %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest report %s: %w", runID, err)
	}

	var report performance.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode backtest report %s: %w", runID, err)
	}
	return &report, nil
}

func (p *Default) SaveSignal(ctx context.Context, rec SignalRecord) (int64, error) {
	var id int64
	err := p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO trading_signals (symbol, timeframe, strategy, signal, reason, sizing_hint, price, bar_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			rec.Symbol, rec.Timeframe, string(rec.Strategy), string(rec.Signal), rec.Reason,
			rec.SizingHint, rec.Price, rec.BarTime.UTC()).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save signal for %s %s: %w", rec.Symbol, rec.Timeframe, err)
	}
	return id, nil
}
