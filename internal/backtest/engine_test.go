package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/strategy"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candlesFromCloses(closes []float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{
			Timestamp: testStart.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func flatCloses(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// scriptedStrategy returns signals by call number and records every window.
type scriptedStrategy struct {
	signals map[int]strategy.Signal
	exit    risk.Rule
	windows []candle.Window
}

func (s *scriptedStrategy) Name() string         { return "scripted" }
func (s *scriptedStrategy) Type() strategy.Type  { return "SCRIPTED" }
func (s *scriptedStrategy) WarmupPeriod() int    { return candle.DefaultWindowSize }
func (s *scriptedStrategy) ExitRule() risk.Rule  { return s.exit }
func (s *scriptedStrategy) Analyze(w candle.Window, _ *strategy.State) (strategy.Analysis, error) {
	call := len(s.windows)
	s.windows = append(s.windows, w)
	sig, ok := s.signals[call]
	if !ok {
		sig = strategy.Hold
	}
	return strategy.Analysis{Signal: sig, Reason: "scripted " + string(sig)}, nil
}

func testParams() Params {
	return Params{InitialCash: 1_000_000, CommissionRate: 0, BuyPercent: 30, SellPercent: 50}
}

func TestEngine_WithholdsWarmup(t *testing.T) {
	strat := &scriptedStrategy{}
	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(flatCloses(60, 100)))
	require.NoError(t, err)

	// Bars 49..59 are evaluated; bar 49 is the first with 50 bars of history.
	require.Len(t, strat.windows, 11)
	for _, w := range strat.windows {
		assert.Equal(t, candle.DefaultWindowSize, w.Len())
	}
	assert.Equal(t, testStart.Add(49*24*time.Hour), strat.windows[0].Time)
	assert.Equal(t, 11, res.EvaluatedBars)
	assert.Equal(t, 60, res.Bars)
	assert.Len(t, res.EquityCurve, 60)
	assert.Equal(t, PhaseDone, engine.Phase())
}

func TestEngine_NoEvaluationBelowWarmup(t *testing.T) {
	strat := &scriptedStrategy{}
	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(flatCloses(49, 100)))
	require.NoError(t, err)
	assert.Empty(t, strat.windows)
	assert.Equal(t, res.InitialValue, res.FinalValue)
}

func TestEngine_BuyThenSell(t *testing.T) {
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		0: strategy.Buy,
		1: strategy.Buy, // ignored: already holding
		2: strategy.Sell,
	}}
	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(flatCloses(55, 100)))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	buy, sell := res.Transactions[0], res.Transactions[1]
	assert.True(t, buy.IsBuy())
	assert.InDelta(t, 3000, buy.Quantity, 1e-9)
	assert.InDelta(t, -300000, buy.Value, 1e-6)
	assert.Equal(t, "scripted BUY", buy.Reason)
	assert.InDelta(t, -1500, sell.Quantity, 1e-9)
	assert.InDelta(t, 1500, res.FinalPosition, 1e-9)
	assert.InDelta(t, 1_000_000, res.FinalValue, 1e-6)
}

func TestEngine_RiskExitOverridesStrategy(t *testing.T) {
	closes := flatCloses(53, 100)
	closes[50] = 90
	closes[51] = 90
	closes[52] = 90

	strat := &scriptedStrategy{
		signals: map[int]strategy.Signal{0: strategy.Buy, 1: strategy.Buy, 2: strategy.Buy},
		exit:    risk.PercentBand{Params: risk.Params{StopLossPct: 5}},
	}
	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(closes))
	require.NoError(t, err)

	// Bar 50 exits on the stop and its BUY is discarded; the BUY on bar 51
	// re-enters. The strategy still sees every bar.
	require.Len(t, strat.windows, 4)
	assert.Equal(t, res.EvaluatedBars, len(strat.windows))
	assert.Equal(t, testStart.Add(50*24*time.Hour), strat.windows[1].Time)

	require.Len(t, res.Transactions, 3)
	exit := res.Transactions[1]
	assert.Contains(t, exit.Reason, "stop loss")
	assert.InDelta(t, -res.Transactions[0].Quantity, exit.Quantity, 1e-9)
	assert.Less(t, exit.PnL, 0.0)
	assert.True(t, res.Transactions[2].IsBuy())
}

// rsiTails serves a fixed RSI tail per call, NaN-padded to the input length.
type rsiTails struct {
	indicator.Default
	tails [][]float64
	calls int
}

func (p *rsiTails) RSI(closes []float64, _ int) ([]float64, error) {
	tail := p.tails[min(p.calls, len(p.tails)-1)]
	p.calls++
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	copy(out[len(out)-len(tail):], tail)
	return out, nil
}

func TestEngine_RiskExitKeepsStrategyState(t *testing.T) {
	closes := flatCloses(54, 100)
	for i := 51; i < len(closes); i++ {
		closes[i] = 90
	}

	// Bar 49 buys on 25 -> 35, bar 50 drops back to 25, bar 51 stops out with
	// RSI at 50. Bar 52 reads 35: a crossing only against the stale 25.
	provider := &rsiTails{tails: [][]float64{{25, 35}, {35, 25}, {25, 50}, {50, 35}, {35, 35}}}
	stop := 5.0
	strat, err := strategy.New(strategy.TypeRSI, strategy.Params{StopLossPct: &stop}, provider, nil)
	require.NoError(t, err)

	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)
	res, err := engine.Run(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 5, res.EvaluatedBars)
	assert.Equal(t, res.EvaluatedBars, provider.calls)

	require.Len(t, res.Transactions, 2)
	assert.True(t, res.Transactions[0].IsBuy())
	assert.Contains(t, res.Transactions[1].Reason, "stop loss")
	assert.InDelta(t, 0, res.FinalPosition, 1e-9)
}

func TestEngine_SkipsUnfillableOrders(t *testing.T) {
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{0: strategy.Buy}}
	params := testParams()
	params.InitialCash = 0.000001

	engine, err := NewEngine(strat, params, nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(flatCloses(50, 1e6)))
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 1, res.SkippedOrders)
}

func TestEngine_BrokerInvariants(t *testing.T) {
	n := 200
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 20*math.Sin(float64(i)/5) + float64(i%3)
	}
	signals := map[int]strategy.Signal{}
	for i := 0; i < n; i++ {
		switch i % 4 {
		case 0, 1:
			signals[i] = strategy.Buy
		case 2, 3:
			signals[i] = strategy.Sell
		}
	}

	params := Params{InitialCash: 10_000, CommissionRate: 0.001, BuyPercent: 100, SellPercent: 100}
	engine, err := NewEngine(&scriptedStrategy{signals: signals}, params, nil)
	require.NoError(t, err)
	res, err := engine.Run(candlesFromCloses(closes))
	require.NoError(t, err)
	require.NotEmpty(t, res.Transactions)

	cash, position := params.InitialCash, 0.0
	for _, tx := range res.Transactions {
		cash += tx.Value - tx.Commission
		position += tx.Quantity
		assert.GreaterOrEqual(t, cash, -1e-6)
		assert.GreaterOrEqual(t, position, -1e-9)
	}
	assert.InDelta(t, res.FinalCash, cash, 1e-6)
	assert.InDelta(t, res.FinalPosition, position, 1e-9)
	for _, p := range res.EquityCurve {
		assert.GreaterOrEqual(t, p.Value, 0.0)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 100 + 15*math.Sin(float64(i)/4)
	}
	candles := candlesFromCloses(closes)

	run := func() []byte {
		strat, err := strategy.New(strategy.TypeRSI, strategy.Params{}, nil, nil)
		require.NoError(t, err)
		engine, err := NewEngine(strat, DefaultParams(), nil, WithRunSeed([]byte("rsi")))
		require.NoError(t, err)
		res, err := engine.Run(candles)
		require.NoError(t, err)
		b, err := json.Marshal(res)
		require.NoError(t, err)
		return b
	}

	first, second := run(), run()
	assert.Equal(t, string(first), string(second))
}

func TestEngine_RunIDDependsOnInputs(t *testing.T) {
	candles := candlesFromCloses(flatCloses(50, 100))
	runID := func(p Params, seed string) string {
		e, err := NewEngine(&scriptedStrategy{}, p, nil, WithRunSeed([]byte(seed)))
		require.NoError(t, err)
		res, err := e.Run(candles)
		require.NoError(t, err)
		return res.RunID
	}

	base := runID(testParams(), "a")
	assert.Equal(t, base, runID(testParams(), "a"))
	assert.NotEqual(t, base, runID(testParams(), "b"))
	other := testParams()
	other.BuyPercent = 40
	assert.NotEqual(t, base, runID(other, "a"))
}

func TestEngine_RisingSeriesRSI(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	strat, err := strategy.New(strategy.TypeRSI, strategy.Params{}, nil, nil)
	require.NoError(t, err)

	engine, err := NewEngine(strat, testParams(), nil)
	require.NoError(t, err)
	res, err := engine.Run(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.FinalValue, res.InitialValue)
	for i := 1; i < len(res.EquityCurve); i++ {
		assert.GreaterOrEqual(t, res.EquityCurve[i].Value, res.EquityCurve[i-1].Value)
	}
}

func TestEngine_Preconditions(t *testing.T) {
	t.Run("Duplicate timestamps", func(t *testing.T) {
		candles := candlesFromCloses(flatCloses(60, 100))
		candles[30].Timestamp = candles[29].Timestamp
		engine, err := NewEngine(&scriptedStrategy{}, testParams(), nil)
		require.NoError(t, err)

		_, err = engine.Run(candles)
		assert.ErrorIs(t, err, candle.ErrDuplicateTimestamp)
		assert.Equal(t, PhaseInit, engine.Phase())
	})

	t.Run("Out of order", func(t *testing.T) {
		candles := candlesFromCloses(flatCloses(60, 100))
		candles[10], candles[11] = candles[11], candles[10]
		engine, err := NewEngine(&scriptedStrategy{}, testParams(), nil)
		require.NoError(t, err)
		_, err = engine.Run(candles)
		assert.ErrorIs(t, err, candle.ErrNotIncreasing)
	})

	t.Run("Empty", func(t *testing.T) {
		engine, err := NewEngine(&scriptedStrategy{}, testParams(), nil)
		require.NoError(t, err)
		_, err = engine.Run(nil)
		assert.ErrorIs(t, err, ErrNoCandles)
	})

	t.Run("Single use", func(t *testing.T) {
		engine, err := NewEngine(&scriptedStrategy{}, testParams(), nil)
		require.NoError(t, err)
		_, err = engine.Run(candlesFromCloses(flatCloses(10, 100)))
		require.NoError(t, err)
		_, err = engine.Run(candlesFromCloses(flatCloses(10, 100)))
		assert.ErrorIs(t, err, ErrAlreadyRun)
	})

	t.Run("Invalid params", func(t *testing.T) {
		bad := []Params{
			{InitialCash: 0, BuyPercent: 10, SellPercent: 10},
			{InitialCash: 1, CommissionRate: 1, BuyPercent: 10, SellPercent: 10},
			{InitialCash: 1, BuyPercent: 0, SellPercent: 10},
			{InitialCash: 1, BuyPercent: 10, SellPercent: 101},
			{InitialCash: 1, BuyPercent: 10, SellPercent: 10, MaxBars: -1},
		}
		for _, p := range bad {
			_, err := NewEngine(&scriptedStrategy{}, p, nil)
			assert.ErrorIs(t, err, ErrInvalidParams)
		}
		_, err := NewEngine(nil, testParams(), nil)
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestEngine_MaxBars(t *testing.T) {
	params := testParams()
	params.MaxBars = 55
	strat := &scriptedStrategy{}
	engine, err := NewEngine(strat, params, nil)
	require.NoError(t, err)

	res, err := engine.Run(candlesFromCloses(flatCloses(80, 100)))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 55, res.Bars)
	assert.Len(t, res.EquityCurve, 55)
	assert.Len(t, strat.windows, 6)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "INIT", PhaseInit.String())
	assert.Equal(t, "RUNNING", PhaseRunning.String())
	assert.Equal(t, "DONE", PhaseDone.String())
}
