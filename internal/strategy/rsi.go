package strategy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
)

// RSIStrategy buys when RSI climbs back above the oversold level and sells
// when it falls back below the overbought level.
type RSIStrategy struct {
	Period     int
	Overbought float64
	Oversold   float64

	riskParams risk.Params
	provider   indicator.Provider
	logger     *zap.Logger
}

func newRSIStrategy(p Params, provider indicator.Provider, logger *zap.Logger) *RSIStrategy {
	return &RSIStrategy{
		Period:     p.RSIPeriod,
		Overbought: p.RSIOverbought,
		Oversold:   p.RSIOversold,
		riskParams: p.RiskParams(risk.Params{}),
		provider:   provider,
		logger:     logger,
	}
}

// Name returns the name of the strategy
func (s *RSIStrategy) Name() string { return "RSI" }

func (s *RSIStrategy) Type() Type { return TypeRSI }

// WarmupPeriod returns the number of candles needed for warm-up
func (s *RSIStrategy) WarmupPeriod() int { return warmup(s.Period + 1) }

func (s *RSIStrategy) ExitRule() risk.Rule { return risk.PercentBand{Params: s.riskParams} }

// Analyze detects RSI crossings of the oversold and overbought levels.
func (s *RSIStrategy) Analyze(w candle.Window, st *State) (Analysis, error) {
	if err := checkWindow(s, w); err != nil {
		return Analysis{}, err
	}
	st = orFresh(st)

	rsi, err := s.provider.RSI(w.Close, s.Period)
	if err != nil {
		return Analysis{}, fmt.Errorf("RSI: calculate RSI: %w", err)
	}
	current, ok := indicator.Last(rsi)
	if !ok {
		return hold("RSI undefined"), nil
	}

	prev, hasPrev := st.PrevRSI, st.HasRSI
	if !hasPrev {
		prev, hasPrev = indicator.At(rsi, len(rsi)-2)
	}
	st.PrevRSI, st.HasRSI = current, true

	if hasPrev && prev <= s.Oversold && current > s.Oversold {
		s.logger.Debug("Strategy | [RSI] Signal changed to BUY",
			zap.Float64("prev_rsi", prev), zap.Float64("rsi", current), zap.Float64("price", w.LastClose()))
		return Analysis{
			Signal: Buy,
			Reason: fmt.Sprintf("buy signal: RSI crossed above oversold %g (previous RSI: %.2f, current RSI: %.2f)",
				s.Oversold, prev, current),
		}, nil
	}

	if hasPrev && prev >= s.Overbought && current < s.Overbought {
		s.logger.Debug("Strategy | [RSI] Signal changed to SELL",
			zap.Float64("prev_rsi", prev), zap.Float64("rsi", current), zap.Float64("price", w.LastClose()))
		return Analysis{
			Signal: Sell,
			Reason: fmt.Sprintf("sell signal: RSI crossed below overbought %g (previous RSI: %.2f, current RSI: %.2f)",
				s.Overbought, prev, current),
		}, nil
	}

	return hold(fmt.Sprintf("current RSI: %.2f", current)), nil
}
