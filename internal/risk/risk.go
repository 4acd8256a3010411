// Package risk decides when an open long position must be closed regardless
// of what the strategy says.
package risk

import (
	"fmt"

	"github.com/amirphl/signal-trader/internal/candle"
)

// Params are percentage bands around the entry price. Zero disables a band.
type Params struct {
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
}

// EntryPosition is the caller's open position. It is never mutated here.
type EntryPosition struct {
	EntryPrice float64 `json:"entry_price"`
}

// Position is the outcome of an exit check. Price is the trigger level that
// was crossed, zero when nothing fired.
type Position struct {
	Selling bool    `json:"selling"`
	Reason  string  `json:"reason"`
	Price   float64 `json:"price"`
}

// Rule is one exit condition evaluated on the last bar of a window.
type Rule interface {
	Check(w candle.Window, entry *EntryPosition) (Position, error)
}

// CheckExit applies the stop-loss and take-profit bands to the last close.
func CheckExit(w candle.Window, entry *EntryPosition, p Params) Position {
	return PercentBand{Params: p}.evaluate(w, entry)
}

// PercentBand exits on stop-loss first, then take-profit.
type PercentBand struct {
	Params Params
}

// Check never fails; the error is there to satisfy Rule.
func (b PercentBand) Check(w candle.Window, entry *EntryPosition) (Position, error) {
	return b.evaluate(w, entry), nil
}

func (b PercentBand) evaluate(w candle.Window, entry *EntryPosition) Position {
	if entry == nil || w.Len() == 0 {
		return Position{}
	}

	price := w.LastClose()
	entryPrice := entry.EntryPrice

	if b.Params.StopLossPct != 0 {
		stop := entryPrice * (1 - b.Params.StopLossPct/100)
		if price <= stop {
			return Position{
				Selling: true,
				Reason: fmt.Sprintf("stop loss: price %.2f is %g%% below entry %.2f",
					price, b.Params.StopLossPct, entryPrice),
				Price: stop,
			}
		}
	}

	if b.Params.TakeProfitPct != 0 {
		target := entryPrice * (1 + b.Params.TakeProfitPct/100)
		if price >= target {
			return Position{
				Selling: true,
				Reason: fmt.Sprintf("take profit: price %.2f is %g%% above entry %.2f",
					price, b.Params.TakeProfitPct, entryPrice),
				Price: target,
			}
		}
	}

	return Position{}
}

// Chain evaluates rules in order; the first one that fires wins.
type Chain []Rule

func (c Chain) Check(w candle.Window, entry *EntryPosition) (Position, error) {
	for _, r := range c {
		pos, err := r.Check(w, entry)
		if err != nil {
			return Position{}, err
		}
		if pos.Selling {
			return pos, nil
		}
	}
	return Position{}, nil
}
