package strategy

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
)

// QullaMaggieStrategy buys when the fast and mid EMAs converge while the slow
// EMA stays apart from both. It never emits SELL; exits come from ExitRule.
type QullaMaggieStrategy struct {
	Fast, Mid, Slow int
	CrossThreshold  float64

	riskParams risk.Params
	provider   indicator.Provider
	logger     *zap.Logger
}

func newQullaMaggieStrategy(p Params, provider indicator.Provider, logger *zap.Logger) *QullaMaggieStrategy {
	return &QullaMaggieStrategy{
		Fast:           p.EMAFast,
		Mid:            p.EMAMid,
		Slow:           p.EMASlow,
		CrossThreshold: p.CrossThreshold,
		riskParams:     p.RiskParams(risk.Params{}),
		provider:       provider,
		logger:         logger,
	}
}

func (s *QullaMaggieStrategy) Name() string { return "QullaMaggie" }

func (s *QullaMaggieStrategy) Type() Type { return TypeQullaMaggie }

func (s *QullaMaggieStrategy) WarmupPeriod() int { return warmup(s.Fast, s.Mid, s.Slow) }

// ExitRule applies the configured percentage bands first, then exits when the
// close drops below the fast EMA.
func (s *QullaMaggieStrategy) ExitRule() risk.Rule {
	return risk.Chain{
		risk.PercentBand{Params: s.riskParams},
		risk.EMABreak{Period: s.Fast, Provider: s.provider},
	}
}

func (s *QullaMaggieStrategy) Analyze(w candle.Window, st *State) (Analysis, error) {
	if err := checkWindow(s, w); err != nil {
		return Analysis{}, err
	}

	fast, err := s.lastEMA(w.Close, s.Fast)
	if err != nil {
		return Analysis{}, err
	}
	mid, err := s.lastEMA(w.Close, s.Mid)
	if err != nil {
		return Analysis{}, err
	}
	slow, err := s.lastEMA(w.Close, s.Slow)
	if err != nil {
		return Analysis{}, err
	}
	if math.IsNaN(fast) || math.IsNaN(mid) || math.IsNaN(slow) {
		return hold("EMA undefined"), nil
	}

	fastMid := s.converged(fast, mid)
	slowApart := !(s.converged(fast, slow) || s.converged(mid, slow))

	var parts []string
	if fastMid {
		parts = append(parts, fmt.Sprintf("EMA%d(%.2f) and EMA%d(%.2f) converged", s.Fast, fast, s.Mid, mid))
	} else {
		parts = append(parts, fmt.Sprintf("EMA%d(%.2f) and EMA%d(%.2f) not converged", s.Fast, fast, s.Mid, mid))
	}
	if slowApart {
		parts = append(parts, fmt.Sprintf("EMA%d(%.2f) separated from the faster EMAs", s.Slow, slow))
	} else {
		parts = append(parts, fmt.Sprintf("EMA%d(%.2f) converged with the faster EMAs", s.Slow, slow))
	}
	reason := strings.Join(parts, " / ")

	if fastMid && slowApart {
		s.logger.Debug("Strategy | [QullaMaggie] Signal changed to BUY",
			zap.Float64("ema_fast", fast), zap.Float64("ema_mid", mid), zap.Float64("ema_slow", slow))
		return Analysis{Signal: Buy, Reason: "buy signal: " + reason}, nil
	}
	return hold(reason), nil
}

func (s *QullaMaggieStrategy) lastEMA(closes []float64, period int) (float64, error) {
	ema, err := s.provider.EMA(closes, period)
	if err != nil {
		return 0, fmt.Errorf("QullaMaggie: calculate EMA%d: %w", period, err)
	}
	v, _ := indicator.Last(ema)
	return v, nil
}

// converged reports whether b is within CrossThreshold percent of a.
func (s *QullaMaggieStrategy) converged(a, b float64) bool {
	if a == 0 {
		return b == 0
	}
	return math.Abs((a-b)/a*100) <= s.CrossThreshold
}
