package strategy

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
)

// MinConditions is how many of the four conditions a side needs to fire.
const MinConditions = 3

// Default exit bands of the profitable strategy.
const (
	ProfitableStopLossPct   = 3.0
	ProfitableTakeProfitPct = 5.0
)

// ProfitableStrategy votes on stochastic, MACD cross and RSI conditions.
type ProfitableStrategy struct {
	params     Params
	riskParams risk.Params
	provider   indicator.Provider
	logger     *zap.Logger
}

type condition struct {
	ok  bool
	msg string
}

func newProfitableStrategy(p Params, provider indicator.Provider, logger *zap.Logger) *ProfitableStrategy {
	return &ProfitableStrategy{
		params: p,
		riskParams: p.RiskParams(risk.Params{
			StopLossPct:   ProfitableStopLossPct,
			TakeProfitPct: ProfitableTakeProfitPct,
		}),
		provider: provider,
		logger:   logger,
	}
}

func (s *ProfitableStrategy) Name() string { return "Profitable" }

func (s *ProfitableStrategy) Type() Type { return TypeProfitable }

func (s *ProfitableStrategy) WarmupPeriod() int {
	p := s.params
	return warmup(
		p.RSIPeriod+1,
		p.MACDSlow+p.MACDSignal-1,
		p.StochFastK+p.StochSlowK+p.StochSlowD-2,
	)
}

func (s *ProfitableStrategy) ExitRule() risk.Rule { return risk.PercentBand{Params: s.riskParams} }

func (s *ProfitableStrategy) Analyze(w candle.Window, st *State) (Analysis, error) {
	if err := checkWindow(s, w); err != nil {
		return Analysis{}, err
	}
	st = orFresh(st)
	p := s.params

	rsi, err := s.provider.RSI(w.Close, p.RSIPeriod)
	if err != nil {
		return Analysis{}, fmt.Errorf("Profitable: calculate RSI: %w", err)
	}
	macd, err := s.provider.MACD(w.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return Analysis{}, fmt.Errorf("Profitable: calculate MACD: %w", err)
	}
	stoch, err := s.provider.Stochastic(w.High, w.Low, w.Close, p.StochFastK, p.StochSlowK, p.StochSlowD)
	if err != nil {
		return Analysis{}, fmt.Errorf("Profitable: calculate stochastic: %w", err)
	}

	curRSI, okRSI := indicator.Last(rsi)
	curMACD, okMACD := indicator.Last(macd.MACD)
	curSignal, okSignal := indicator.Last(macd.Signal)
	k, okK := indicator.Last(stoch.K)
	d, okD := indicator.Last(stoch.D)

	golden, dead := s.macdCross(st, macd, curMACD, curSignal, okMACD && okSignal)

	buy := []condition{
		{okK && k < p.StochOversold, fmt.Sprintf("Stoch K: %.2f < %g", k, p.StochOversold)},
		{okD && d < p.StochOversold, fmt.Sprintf("Stoch D: %.2f < %g", d, p.StochOversold)},
		{golden, fmt.Sprintf("MACD golden cross (MACD: %.4f, signal: %.4f)", curMACD, curSignal)},
		{okRSI && curRSI > p.RSIThreshold, fmt.Sprintf("RSI: %.2f > %g", curRSI, p.RSIThreshold)},
	}
	sell := []condition{
		{okK && k > p.StochOverbought, fmt.Sprintf("Stoch K: %.2f > %g", k, p.StochOverbought)},
		{okD && d > p.StochOverbought, fmt.Sprintf("Stoch D: %.2f > %g", d, p.StochOverbought)},
		{dead, fmt.Sprintf("MACD dead cross (MACD: %.4f, signal: %.4f)", curMACD, curSignal)},
		{okRSI && curRSI < p.RSIThreshold, fmt.Sprintf("RSI: %.2f < %g", curRSI, p.RSIThreshold)},
	}

	buyMet := satisfied(buy)
	sellMet := satisfied(sell)

	switch {
	case len(buyMet) >= MinConditions:
		s.logger.Debug("Strategy | [Profitable] Signal changed to BUY",
			zap.Int("conditions", len(buyMet)), zap.Float64("price", w.LastClose()))
		return Analysis{
			Signal: Buy,
			Reason: fmt.Sprintf("buy signal (%d of 4 conditions met): %s", len(buyMet), strings.Join(buyMet, ", ")),
		}, nil
	case len(sellMet) >= MinConditions:
		s.logger.Debug("Strategy | [Profitable] Signal changed to SELL",
			zap.Int("conditions", len(sellMet)), zap.Float64("price", w.LastClose()))
		return Analysis{
			Signal: Sell,
			Reason: fmt.Sprintf("sell signal (%d of 4 conditions met): %s", len(sellMet), strings.Join(sellMet, ", ")),
		}, nil
	}

	if len(buyMet) == 0 && len(sellMet) == 0 {
		return hold(""), nil
	}
	return hold(fmt.Sprintf("no signal: buy %d/4 [%s], sell %d/4 [%s]",
		len(buyMet), strings.Join(buyMet, ", "), len(sellMet), strings.Join(sellMet, ", "))), nil
}

// macdCross compares the current MACD/signal pair with the previous one and
// stores the current pair in st. A fresh state takes the previous pair from
// the window's second-to-last bar.
func (s *ProfitableStrategy) macdCross(st *State, macd indicator.MACDResult, cur, curSignal float64, ok bool) (golden, dead bool) {
	prev, prevSignal, hasPrev := st.PrevMACD, st.PrevMACDSignal, st.HasMACD
	if !hasPrev {
		var okM, okS bool
		prev, okM = indicator.At(macd.MACD, len(macd.MACD)-2)
		prevSignal, okS = indicator.At(macd.Signal, len(macd.Signal)-2)
		hasPrev = okM && okS
	}

	if !ok {
		return false, false
	}
	st.PrevMACD, st.PrevMACDSignal, st.HasMACD = cur, curSignal, true

	if !hasPrev {
		return false, false
	}
	golden = prev <= prevSignal && cur > curSignal
	dead = prev >= prevSignal && cur < curSignal
	return golden, dead
}

func satisfied(conds []condition) []string {
	var out []string
	for _, c := range conds {
		if c.ok {
			out = append(out, c.msg)
		}
	}
	return out
}
