package strategy

import (
	"errors"
	"fmt"

	"github.com/amirphl/signal-trader/internal/risk"
)

// Params carries every tunable of every strategy. Each strategy reads only
// its own fields; zero values fall back to the defaults below.
type Params struct {
	RSIPeriod     int     `json:"rsi_period,omitempty" yaml:"rsi_period"`
	RSIOverbought float64 `json:"rsi_overbought,omitempty" yaml:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold,omitempty" yaml:"rsi_oversold"`
	RSIThreshold  float64 `json:"rsi_threshold,omitempty" yaml:"rsi_threshold"`

	MACDFast   int `json:"macd_fast,omitempty" yaml:"macd_fast"`
	MACDSlow   int `json:"macd_slow,omitempty" yaml:"macd_slow"`
	MACDSignal int `json:"macd_signal,omitempty" yaml:"macd_signal"`

	StochFastK      int     `json:"stoch_fastk,omitempty" yaml:"stoch_fastk"`
	StochSlowK      int     `json:"stoch_slowk,omitempty" yaml:"stoch_slowk"`
	StochSlowD      int     `json:"stoch_slowd,omitempty" yaml:"stoch_slowd"`
	StochOversold   float64 `json:"stoch_oversold,omitempty" yaml:"stoch_oversold"`
	StochOverbought float64 `json:"stoch_overbought,omitempty" yaml:"stoch_overbought"`

	EMAFast        int     `json:"ema_fast,omitempty" yaml:"ema_fast"`
	EMAMid         int     `json:"ema_mid,omitempty" yaml:"ema_mid"`
	EMASlow        int     `json:"ema_slow,omitempty" yaml:"ema_slow"`
	CrossThreshold float64 `json:"cross_threshold,omitempty" yaml:"cross_threshold"`

	// Nil means the strategy's own default band; an explicit 0 disables it.
	StopLossPct   *float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct"`
	TakeProfitPct *float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct"`
}

const (
	DefaultRSIPeriod       = 14
	DefaultRSIOverbought   = 70.0
	DefaultRSIOversold     = 30.0
	DefaultRSIThreshold    = 50.0
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultStochFastK      = 12
	DefaultStochSlowK      = 3
	DefaultStochSlowD      = 3
	DefaultStochOversold   = 20.0
	DefaultStochOverbought = 80.0
	DefaultEMAFast         = 10
	DefaultEMAMid          = 20
	DefaultEMASlow         = 50
	DefaultCrossThreshold  = 0.1
)

// DefaultParams returns the full default parameter set.
func DefaultParams() Params {
	return Params{}.WithDefaults()
}

// WithDefaults fills every zero-valued field with its default.
func (p Params) WithDefaults() Params {
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setFloat := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}

	setInt(&p.RSIPeriod, DefaultRSIPeriod)
	setFloat(&p.RSIOverbought, DefaultRSIOverbought)
	setFloat(&p.RSIOversold, DefaultRSIOversold)
	setFloat(&p.RSIThreshold, DefaultRSIThreshold)
	setInt(&p.MACDFast, DefaultMACDFast)
	setInt(&p.MACDSlow, DefaultMACDSlow)
	setInt(&p.MACDSignal, DefaultMACDSignal)
	setInt(&p.StochFastK, DefaultStochFastK)
	setInt(&p.StochSlowK, DefaultStochSlowK)
	setInt(&p.StochSlowD, DefaultStochSlowD)
	setFloat(&p.StochOversold, DefaultStochOversold)
	setFloat(&p.StochOverbought, DefaultStochOverbought)
	setInt(&p.EMAFast, DefaultEMAFast)
	setInt(&p.EMAMid, DefaultEMAMid)
	setInt(&p.EMASlow, DefaultEMASlow)
	setFloat(&p.CrossThreshold, DefaultCrossThreshold)
	return p
}

// Validate checks the fields the given strategy reads.
func (p Params) Validate(t Type) error {
	positive := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParams, name, v)
		}
		return nil
	}

	var errs []error
	switch t {
	case TypeRSI:
		errs = append(errs, positive("rsi_period", p.RSIPeriod))
		if p.RSIOversold >= p.RSIOverbought {
			errs = append(errs, fmt.Errorf("%w: rsi_oversold %.2f must be below rsi_overbought %.2f",
				ErrInvalidParams, p.RSIOversold, p.RSIOverbought))
		}
	case TypeProfitable:
		errs = append(errs,
			positive("rsi_period", p.RSIPeriod),
			positive("macd_fast", p.MACDFast),
			positive("macd_slow", p.MACDSlow),
			positive("macd_signal", p.MACDSignal),
			positive("stoch_fastk", p.StochFastK),
			positive("stoch_slowk", p.StochSlowK),
			positive("stoch_slowd", p.StochSlowD),
		)
		if p.MACDFast >= p.MACDSlow {
			errs = append(errs, fmt.Errorf("%w: macd_fast %d must be below macd_slow %d",
				ErrInvalidParams, p.MACDFast, p.MACDSlow))
		}
		if p.StochOversold >= p.StochOverbought {
			errs = append(errs, fmt.Errorf("%w: stoch_oversold %.2f must be below stoch_overbought %.2f",
				ErrInvalidParams, p.StochOversold, p.StochOverbought))
		}
	case TypeQullaMaggie:
		errs = append(errs,
			positive("ema_fast", p.EMAFast),
			positive("ema_mid", p.EMAMid),
			positive("ema_slow", p.EMASlow),
		)
		if p.CrossThreshold < 0 {
			errs = append(errs, fmt.Errorf("%w: cross_threshold must not be negative", ErrInvalidParams))
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, t)
	}

	if p.StopLossPct != nil && (*p.StopLossPct < 0 || *p.StopLossPct >= 100) {
		errs = append(errs, fmt.Errorf("%w: stop_loss_pct must be in [0, 100)", ErrInvalidParams))
	}
	if p.TakeProfitPct != nil && *p.TakeProfitPct < 0 {
		errs = append(errs, fmt.Errorf("%w: take_profit_pct must not be negative", ErrInvalidParams))
	}

	return errors.Join(errs...)
}

// RiskParams resolves the stop-loss and take-profit bands, falling back to
// def for any band left unset.
func (p Params) RiskParams(def risk.Params) risk.Params {
	out := def
	if p.StopLossPct != nil {
		out.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		out.TakeProfitPct = *p.TakeProfitPct
	}
	return out
}
