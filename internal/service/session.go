package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/strategy"
)

// Session evaluates one strategy repeatedly for a polling caller and keeps
// its crossing state between calls. It is not safe for concurrent use.
type Session struct {
	strat    strategy.Strategy
	exitRule risk.Rule
	state    *strategy.State
	logger   *zap.Logger
	opts     Options
}

func (s *Service) NewSession(t strategy.Type, params strategy.Params) (*Session, error) {
	strat, err := s.newStrategy(t, params)
	if err != nil {
		return nil, err
	}
	return &Session{
		strat:    strat,
		exitRule: strat.ExitRule(),
		state:    strategy.NewState(),
		logger:   s.logger,
		opts:     s.opts,
	}, nil
}

func (s *Session) Strategy() strategy.Strategy { return s.strat }

// Evaluate runs the strategy on the last bar of candles, then lets a firing
// exit rule for entry replace its signal. The strategy runs on every call so
// its previous-bar memory stays aligned.
func (s *Session) Evaluate(candles []candle.Candle, entry *risk.EntryPosition) (strategy.Analysis, error) {
	if err := candle.ValidateSeries(candles); err != nil {
		return strategy.Analysis{}, fmt.Errorf("%w: GetSignal | %w", ErrInvalidRequest, err)
	}
	warmup := s.strat.WarmupPeriod()
	if len(candles) < warmup {
		return strategy.Analysis{}, fmt.Errorf("%w: GetSignal | %w: have %d candles, need %d",
			ErrInvalidRequest, strategy.ErrInsufficientHistory, len(candles), warmup)
	}
	if entry != nil && entry.EntryPrice <= 0 {
		return strategy.Analysis{}, fmt.Errorf("%w: GetSignal | entry price must be positive", ErrInvalidRequest)
	}

	w, err := candle.NewWindow(candles, len(candles)-1, max(warmup, candle.DefaultWindowSize))
	if err != nil {
		return strategy.Analysis{}, fmt.Errorf("GetSignal | %w", err)
	}

	analysis, err := s.strat.Analyze(w, s.state)
	if err != nil {
		return strategy.Analysis{}, fmt.Errorf("GetSignal | %w", err)
	}

	if entry != nil && s.exitRule != nil {
		pos, err := s.exitRule.Check(w, entry)
		if err != nil {
			return strategy.Analysis{}, fmt.Errorf("GetSignal | risk: %w", err)
		}
		if pos.Selling {
			s.logger.Info("Signal | Risk exit",
				zap.String("strategy", s.strat.Name()),
				zap.Float64("entry_price", entry.EntryPrice),
				zap.Float64("price", w.LastClose()),
				zap.String("reason", pos.Reason))
			size := FullExitSizing
			return strategy.Analysis{Signal: strategy.Sell, Reason: pos.Reason, SizingHint: &size}, nil
		}
	}

	switch analysis.Signal {
	case strategy.Buy:
		size := s.opts.SignalBuyPct
		analysis.SizingHint = &size
	case strategy.Sell:
		size := s.opts.SignalSellPct
		analysis.SizingHint = &size
	}
	return analysis, nil
}
