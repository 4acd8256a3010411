package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/api"
	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/config"
	"github.com/amirphl/signal-trader/internal/db"
	"github.com/amirphl/signal-trader/internal/db/conf"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/service"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

func main() {
	cfg := config.MustLoadConfig()

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	utils.SetLogger(logger)
	defer logger.Sync()

	logger.Info("Starting Signal Trader", zap.String("mode", cfg.Mode), zap.String("strategy", cfg.Strategy))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigration {
		if err := runMigrations(ctx, cfg.DBConnStr); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	storage, closeStorage, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer closeStorage()

	svc := service.New(indicator.Default{}, logger, service.Options{
		SignalBuyPct:  cfg.SignalBuyPct,
		SignalSellPct: cfg.SignalSellPct,
		MaxBars:       cfg.MaxBars,
		RiskFreeRate:  cfg.RiskFreeRate,
	})

	switch cfg.Mode {
	case config.ModeSignal:
		err = runSignal(ctx, cfg, svc, storage, logger)
	case config.ModeBacktest:
		err = runBacktest(ctx, cfg, svc, storage, logger)
	case config.ModeServe:
		err = api.NewHandler(svc, storage, logger, cfg.RequestTimeout).Serve(ctx, cfg.HTTPAddr)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
	if err != nil {
		logger.Fatal("Signal Trader stopped with error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// openStorage connects to Postgres when a connection string is configured
// and falls back to in-memory storage otherwise.
func openStorage(cfg config.Config, logger *zap.Logger) (db.Storage, func(), error) {
	if cfg.DBConnStr == "" {
		logger.Info("No database configured, using in-memory storage")
		return db.NewMemory(), func() {}, nil
	}

	dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create DB config: %w", err)
	}
	storage, err := db.New(*dbConfig)
	if err != nil {
		dbConfig.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Connected to Postgres")
	return storage, func() { dbConfig.Close() }, nil
}

// loadCandles reads the configured CSV file, or queries storage for the
// configured symbol and timeframe.
func loadCandles(ctx context.Context, cfg config.Config, storage db.Storage) ([]candle.Candle, error) {
	if cfg.CandlesFile == "" {
		candles, err := storage.GetCandles(ctx, cfg.Symbol, cfg.Timeframe, "", cfg.From, cfg.To)
		if err != nil {
			return nil, fmt.Errorf("error loading candles from database: %w", err)
		}
		return candles, nil
	}

	f, err := os.Open(cfg.CandlesFile)
	if err != nil {
		return nil, fmt.Errorf("open candles file: %w", err)
	}
	defer f.Close()

	candles, err := candle.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.CandlesFile, err)
	}

	out := candles[:0]
	for _, c := range candles {
		if !cfg.From.IsZero() && c.Timestamp.Before(cfg.From) {
			continue
		}
		if !cfg.To.IsZero() && !c.Timestamp.Before(cfg.To) {
			continue
		}
		c.Symbol, c.Timeframe, c.Source = cfg.Symbol, cfg.Timeframe, "csv"
		out = append(out, c)
	}
	return out, nil
}

func runSignal(ctx context.Context, cfg config.Config, svc *service.Service, storage db.Storage, logger *zap.Logger) error {
	candles, err := loadCandles(ctx, cfg, storage)
	if err != nil {
		return err
	}
	t, err := strategy.ParseType(cfg.Strategy)
	if err != nil {
		return err
	}

	var entry *risk.EntryPosition
	if cfg.EntryPrice > 0 {
		entry = &risk.EntryPosition{EntryPrice: cfg.EntryPrice}
	}

	analysis, err := svc.GetSignal(candles, t, cfg.StrategyParams, entry)
	if err != nil {
		return err
	}

	last := candles[len(candles)-1]
	if _, err := storage.SaveSignal(ctx, db.SignalRecord{
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
		Strategy:   t,
		Signal:     analysis.Signal,
		Reason:     analysis.Reason,
		SizingHint: analysis.SizingHint,
		Price:      last.Close,
		BarTime:    last.Timestamp,
	}); err != nil {
		logger.Warn("Failed to save signal", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}

func runBacktest(ctx context.Context, cfg config.Config, svc *service.Service, storage db.Storage, logger *zap.Logger) error {
	candles, err := loadCandles(ctx, cfg, storage)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles for %s %s", cfg.Symbol, cfg.Timeframe)
	}
	logger.Info("Loaded candles for backtest",
		zap.Int("count", len(candles)),
		zap.Time("from", candles[0].Timestamp),
		zap.Time("to", candles[len(candles)-1].Timestamp))

	t, err := strategy.ParseType(cfg.Strategy)
	if err != nil {
		return err
	}
	bp := backtest.Params{
		InitialCash:    cfg.InitialCash,
		CommissionRate: cfg.CommissionRate,
		BuyPercent:     cfg.BuyPercent,
		SellPercent:    cfg.SellPercent,
		MaxBars:        cfg.MaxBars,
	}

	report, err := svc.RunBacktest(candles, t, cfg.StrategyParams, bp)
	if err != nil {
		return err
	}
	printBacktestResults(report, logger)

	res := backtest.Result{Transactions: report.Transactions, EquityCurve: report.EquityCurve}
	if err := backtest.WriteCSV(cfg.OutputDir, res); err != nil {
		return err
	}

	if err := storage.SaveBacktestReport(ctx, db.ReportMeta{Symbol: cfg.Symbol, Timeframe: cfg.Timeframe}, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// printBacktestResults logs a summary and the first trades of a report.
func printBacktestResults(r performance.Report, logger *zap.Logger) {
	logger.Info("Backtest Results",
		zap.String("run_id", r.RunID),
		zap.String("strategy", string(r.Strategy)),
		zap.Float64("initial_value", r.InitialValue),
		zap.Float64("final_value", r.FinalValue),
		zap.Float64("roi_pct", r.ROIPct),
		zap.Float64("annual_roi_pct", r.AnnualROIPct),
		zap.Float64("total_return_pct", r.TotalReturnPct),
		zap.Float64("sharpe", r.SharpeRatio),
		zap.Float64("max_drawdown_pct", r.MaxDrawdownPct),
		zap.Int("trades", r.TradeCount),
		zap.Float64("win_rate", r.WinRate),
		zap.Float64("profit_factor", r.ProfitFactor),
		zap.Int("skipped_orders", r.SkippedOrders))

	const maxTrades = 10
	for i, tx := range r.Transactions {
		if i >= maxTrades {
			logger.Info(fmt.Sprintf("... and %d more trades", len(r.Transactions)-maxTrades))
			break
		}
		logger.Info("Trade",
			zap.Int("n", i+1),
			zap.String("side", tx.Side()),
			zap.Time("time", tx.Timestamp),
			zap.Float64("quantity", tx.Quantity),
			zap.Float64("price", tx.Price),
			zap.Float64("pnl", tx.PnL))
	}
}

// runMigrations creates the database if it doesn't exist and runs the schema.sql script
func runMigrations(ctx context.Context, connStr string) error {
	if connStr == "" {
		return errors.New("migration requires a database connection string")
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	admin := *u
	admin.Path = "/postgres"
	baseDB, err := sql.Open("postgres", admin.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		if _, err := baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	target, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer target.Close()

	schemaSQL, err := os.ReadFile("scripts/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	for stmt := range strings.SplitSeq(string(schemaSQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(stmt, "create_hypertable") {
				log.Printf("Skipping hypertable setup: %v", err)
				continue
			}
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
