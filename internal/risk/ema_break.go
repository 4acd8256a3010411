package risk

import (
	"fmt"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
)

// EMABreak exits once the last close drops below the EMA of the given period.
type EMABreak struct {
	Period   int
	Provider indicator.Provider
}

func (r EMABreak) Check(w candle.Window, entry *EntryPosition) (Position, error) {
	if entry == nil || w.Len() == 0 {
		return Position{}, nil
	}

	provider := r.Provider
	if provider == nil {
		provider = indicator.Default{}
	}
	ema, err := provider.EMA(w.Close, r.Period)
	if err != nil {
		return Position{}, fmt.Errorf("EMABreak | %w", err)
	}
	level, ok := indicator.Last(ema)
	if !ok {
		return Position{}, nil
	}

	price := w.LastClose()
	if price < level {
		return Position{
			Selling: true,
			Reason:  fmt.Sprintf("take profit: price %.2f closed below EMA%d (%.2f)", price, r.Period, level),
			Price:   level,
		}, nil
	}
	return Position{}, nil
}
