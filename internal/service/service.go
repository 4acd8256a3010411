// Package service is the external face of the engine: one-shot signals,
// polling sessions and full backtests.
package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

// ErrInvalidRequest marks caller mistakes: bad candles, unknown strategy,
// invalid parameters or too little history.
var ErrInvalidRequest = errors.New("invalid request")

// FullExitSizing is the sizing hint of a risk exit: sell the whole position.
const FullExitSizing = 100.0

type Options struct {
	// SignalBuyPct and SignalSellPct are attached to strategy BUY and SELL
	// signals as sizing hints.
	SignalBuyPct  float64
	SignalSellPct float64
	// MaxBars caps every backtest; zero means no limit.
	MaxBars      int
	RiskFreeRate float64
}

func DefaultOptions() Options {
	return Options{SignalBuyPct: 10, SignalSellPct: 20}
}

// Service is stateless and safe for concurrent use.
type Service struct {
	provider indicator.Provider
	logger   *zap.Logger
	opts     Options
}

func New(provider indicator.Provider, logger *zap.Logger, opts Options) *Service {
	if provider == nil {
		provider = indicator.Default{}
	}
	return &Service{provider: provider, logger: utils.OrNop(logger), opts: opts}
}

// GetSignal evaluates the strategy on the last bar of candles with fresh
// state. A firing exit rule for entry overrides the strategy.
func (s *Service) GetSignal(candles []candle.Candle, t strategy.Type, params strategy.Params, entry *risk.EntryPosition) (strategy.Analysis, error) {
	sess, err := s.NewSession(t, params)
	if err != nil {
		return strategy.Analysis{}, err
	}
	return sess.Evaluate(candles, entry)
}

// RunBacktest replays candles and returns the analyzed report.
func (s *Service) RunBacktest(candles []candle.Candle, t strategy.Type, params strategy.Params, bp backtest.Params) (performance.Report, error) {
	strat, err := s.newStrategy(t, params)
	if err != nil {
		return performance.Report{}, err
	}
	if s.opts.MaxBars > 0 && (bp.MaxBars == 0 || bp.MaxBars > s.opts.MaxBars) {
		bp.MaxBars = s.opts.MaxBars
	}

	seed, err := json.Marshal(params.WithDefaults())
	if err != nil {
		return performance.Report{}, fmt.Errorf("RunBacktest | encode params: %w", err)
	}
	engine, err := backtest.NewEngine(strat, bp, s.logger, backtest.WithRunSeed(seed))
	if err != nil {
		return performance.Report{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	res, err := engine.Run(candles)
	if err != nil {
		if isPrecondition(err) {
			return performance.Report{}, fmt.Errorf("%w: RunBacktest | %w", ErrInvalidRequest, err)
		}
		return performance.Report{}, fmt.Errorf("RunBacktest | %w", err)
	}

	report := performance.Analyze(res, performance.Options{RiskFreeRate: s.opts.RiskFreeRate})
	s.logger.Info("Backtest | Report",
		zap.String("run_id", report.RunID),
		zap.String("strategy", string(report.Strategy)),
		zap.Float64("roi_pct", report.ROIPct),
		zap.Float64("sharpe", report.SharpeRatio),
		zap.Float64("max_drawdown_pct", report.MaxDrawdownPct),
		zap.Int("trades", report.TradeCount))
	return report, nil
}

func (s *Service) newStrategy(t strategy.Type, params strategy.Params) (strategy.Strategy, error) {
	strat, err := strategy.New(t, params, s.provider, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return strat, nil
}

func isPrecondition(err error) bool {
	return errors.Is(err, candle.ErrInvalidCandle) ||
		errors.Is(err, candle.ErrDuplicateTimestamp) ||
		errors.Is(err, candle.ErrNotIncreasing) ||
		errors.Is(err, backtest.ErrNoCandles) ||
		errors.Is(err, strategy.ErrInsufficientHistory)
}
