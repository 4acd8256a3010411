// Package backtest replays a strategy over historical candles against a
// simulated broker.
package backtest

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

var (
	ErrInvalidParams = errors.New("invalid backtest parameters")
	ErrAlreadyRun    = errors.New("backtest engine already used")
	ErrNoCandles     = errors.New("no candles")
)

// runNamespace scopes run ids produced by this package.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("signal-trader/backtest"))

// Params configures the simulated account and order sizing.
type Params struct {
	InitialCash    float64 `json:"initial_cash" yaml:"initial_cash"`
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
	BuyPercent     float64 `json:"buy_percent" yaml:"buy_percent"`
	SellPercent    float64 `json:"sell_percent" yaml:"sell_percent"`
	// MaxBars stops RUNNING after this many bars; zero means no limit.
	MaxBars int `json:"max_bars,omitempty" yaml:"max_bars"`
}

const (
	DefaultInitialCash    = 100_000_000.0
	DefaultCommissionRate = 0.0005
	DefaultBuyPercent     = 30.0
	DefaultSellPercent    = 50.0
)

func DefaultParams() Params {
	return Params{
		InitialCash:    DefaultInitialCash,
		CommissionRate: DefaultCommissionRate,
		BuyPercent:     DefaultBuyPercent,
		SellPercent:    DefaultSellPercent,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.InitialCash <= 0 {
		errs = append(errs, fmt.Errorf("%w: initial cash must be positive, got %v", ErrInvalidParams, p.InitialCash))
	}
	if p.CommissionRate < 0 || p.CommissionRate >= 1 {
		errs = append(errs, fmt.Errorf("%w: commission rate must be in [0, 1), got %v", ErrInvalidParams, p.CommissionRate))
	}
	if p.BuyPercent <= 0 || p.BuyPercent > 100 {
		errs = append(errs, fmt.Errorf("%w: buy percent must be in (0, 100], got %v", ErrInvalidParams, p.BuyPercent))
	}
	if p.SellPercent <= 0 || p.SellPercent > 100 {
		errs = append(errs, fmt.Errorf("%w: sell percent must be in (0, 100], got %v", ErrInvalidParams, p.SellPercent))
	}
	if p.MaxBars < 0 {
		errs = append(errs, fmt.Errorf("%w: max bars must not be negative", ErrInvalidParams))
	}
	return errors.Join(errs...)
}

type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseRunning:
		return "RUNNING"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Result is the raw outcome of one run: the broker's terminal state, the
// per-bar equity curve and the transaction log.
type Result struct {
	RunID         string        `json:"run_id"`
	Strategy      strategy.Type `json:"strategy"`
	Params        Params        `json:"params"`
	InitialValue  float64       `json:"initial_value"`
	FinalValue    float64       `json:"final_value"`
	FinalCash     float64       `json:"final_cash"`
	FinalPosition float64       `json:"final_position"`
	Transactions  []Transaction `json:"transactions"`
	EquityCurve   []EquityPoint `json:"equity_curve"`
	SkippedOrders int           `json:"skipped_orders"`
	Bars          int           `json:"bars"`
	EvaluatedBars int           `json:"evaluated_bars"`
	Truncated     bool          `json:"truncated,omitempty"`
}

type Option func(*Engine)

// WithRunSeed mixes seed into the run id, typically the strategy parameters.
func WithRunSeed(seed []byte) Option {
	return func(e *Engine) { e.seed = seed }
}

// Engine runs one backtest. It moves INIT -> RUNNING -> DONE exactly once and
// owns its broker and strategy state.
type Engine struct {
	strat  strategy.Strategy
	params Params
	logger *zap.Logger
	seed   []byte

	phase  Phase
	broker *Broker
	state  *strategy.State
}

func NewEngine(strat strategy.Strategy, params Params, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: strategy is nil", ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		strat:  strat,
		params: params,
		logger: utils.OrNop(logger),
		phase:  PhaseInit,
		state:  strategy.NewState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Phase() Phase { return e.phase }

// Run replays candles in order. Candles must be strictly increasing in time.
func (e *Engine) Run(candles []candle.Candle) (Result, error) {
	if e.phase != PhaseInit {
		return Result{}, ErrAlreadyRun
	}

	// INIT
	if len(candles) == 0 {
		return Result{}, ErrNoCandles
	}
	if err := candle.ValidateSeries(candles); err != nil {
		return Result{}, fmt.Errorf("validate candles: %w", err)
	}
	e.broker = NewBroker(e.params.InitialCash, e.params.CommissionRate)

	res := Result{
		RunID:        e.runID(candles).String(),
		Strategy:     e.strat.Type(),
		Params:       e.params,
		InitialValue: e.params.InitialCash,
		EquityCurve:  make([]EquityPoint, 0, len(candles)),
		Transactions: []Transaction{},
	}

	e.logger.Info("Backtest | Starting",
		zap.String("run_id", res.RunID),
		zap.String("strategy", e.strat.Name()),
		zap.Int("candles", len(candles)),
		zap.Float64("initial_cash", e.params.InitialCash))

	// RUNNING
	e.phase = PhaseRunning
	warmup := e.strat.WarmupPeriod()
	windowSize := max(warmup, candle.DefaultWindowSize)
	exitRule := e.strat.ExitRule()

	for i := range candles {
		if e.params.MaxBars > 0 && i >= e.params.MaxBars {
			res.Truncated = true
			e.logger.Warn("Backtest | Bar limit reached", zap.Int("max_bars", e.params.MaxBars))
			break
		}
		c := candles[i]
		res.Bars++

		if i+1 >= warmup {
			w, err := candle.NewWindow(candles, i, windowSize)
			if err != nil {
				return Result{}, err
			}
			res.EvaluatedBars++
			e.step(c, w, exitRule, &res)
		}

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: c.Timestamp,
			Value:     e.broker.Value(c.Close).InexactFloat64(),
		})
	}

	// DONE
	e.phase = PhaseDone
	last := candles[res.Bars-1]
	res.FinalValue = e.broker.Value(last.Close).InexactFloat64()
	res.FinalCash = e.broker.Cash().InexactFloat64()
	res.FinalPosition = e.broker.Position().InexactFloat64()

	e.logger.Info("Backtest | Finished",
		zap.String("run_id", res.RunID),
		zap.Int("transactions", len(res.Transactions)),
		zap.Int("skipped_orders", res.SkippedOrders),
		zap.Float64("final_value", res.FinalValue))

	return res, nil
}

// step processes one bar. The strategy always runs so its state tracks the
// previous bar; a firing risk exit then closes the position and ends the bar.
func (e *Engine) step(c candle.Candle, w candle.Window, exitRule risk.Rule, res *Result) {
	analysis, err := e.strat.Analyze(w, e.state)
	if err != nil {
		e.logger.Warn("Backtest | Strategy failed, holding", zap.Time("time", c.Timestamp), zap.Error(err))
		analysis = strategy.Analysis{Signal: strategy.Hold}
	}

	if e.broker.HasPosition() && exitRule != nil {
		entry := &risk.EntryPosition{EntryPrice: e.broker.AvgPrice().InexactFloat64()}
		pos, err := exitRule.Check(w, entry)
		if err != nil {
			e.logger.Warn("Backtest | Risk check failed", zap.Time("time", c.Timestamp), zap.Error(err))
		} else if pos.Selling {
			e.logger.Info("Backtest | Risk exit",
				zap.Time("time", c.Timestamp), zap.Float64("price", c.Close), zap.String("reason", pos.Reason))
			e.execute(c, res, pos.Reason, func() (Fill, error) { return e.broker.SellAll(c.Close) })
			return
		}
	}

	switch analysis.Signal {
	case strategy.Buy:
		if !e.broker.HasPosition() {
			e.execute(c, res, analysis.Reason, func() (Fill, error) {
				return e.broker.Buy(c.Close, e.params.BuyPercent)
			})
		}
	case strategy.Sell:
		if e.broker.HasPosition() {
			e.execute(c, res, analysis.Reason, func() (Fill, error) {
				return e.broker.Sell(c.Close, e.params.SellPercent)
			})
		}
	}
}

func (e *Engine) execute(c candle.Candle, res *Result, reason string, order func() (Fill, error)) {
	fill, err := order()
	if err != nil {
		res.SkippedOrders++
		e.logger.Info("Backtest | order skipped (no-op)",
			zap.Time("time", c.Timestamp), zap.Float64("price", c.Close), zap.Error(err))
		return
	}

	tx := newTransaction(c.Timestamp, fill, reason)
	res.Transactions = append(res.Transactions, tx)
	e.logger.Info("Backtest | Filled",
		zap.Time("time", c.Timestamp),
		zap.String("side", tx.Side()),
		zap.Float64("quantity", tx.Quantity),
		zap.Float64("price", tx.Price),
		zap.Float64("commission", tx.Commission),
		zap.String("cash", e.broker.Cash().StringFixed(2)))
}

func (e *Engine) runID(candles []candle.Candle) uuid.UUID {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", e.strat.Type())
	if b, err := json.Marshal(e.params); err == nil {
		h.Write(b)
	}
	h.Write(e.seed)
	for _, c := range candles {
		fmt.Fprintf(h, "|%d,%g,%g,%g,%g,%g", c.Timestamp.UnixNano(), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return uuid.NewSHA1(runNamespace, h.Sum(nil))
}

// Duration is the calendar span of the equity curve.
func (r Result) Duration() time.Duration {
	if len(r.EquityCurve) < 2 {
		return 0
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Timestamp.Sub(r.EquityCurve[0].Timestamp)
}
