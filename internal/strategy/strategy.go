// Package strategy
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/utils"
)

var (
	// ErrInsufficientHistory is returned when a window is shorter than WarmupPeriod.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrUnknownStrategy is returned for a strategy type outside the known set.
	ErrUnknownStrategy = errors.New("unknown strategy type")
	// ErrInvalidParams is returned when strategy parameters are inconsistent.
	ErrInvalidParams = errors.New("invalid strategy parameters")
)

type Type string

const (
	TypeRSI         Type = "RSI"
	TypeProfitable  Type = "PROFITABLE"
	TypeQullaMaggie Type = "QULLAMAGGIE"
)

// Types lists every supported strategy in a stable order.
func Types() []Type {
	return []Type{TypeRSI, TypeProfitable, TypeQullaMaggie}
}

// ParseType matches s case-insensitively against the supported strategies.
func ParseType(s string) (Type, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	for _, t := range Types() {
		if string(t) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// Analysis is the outcome of evaluating the last bar of a window.
type Analysis struct {
	Signal     Signal   `json:"signal"`
	Reason     string   `json:"reason,omitempty"`
	SizingHint *float64 `json:"sizing_hint,omitempty"`
}

// Strategy is the interface for all trading strategies.
type Strategy interface {
	Name() string
	Type() Type
	// WarmupPeriod is the minimum window length Analyze accepts.
	WarmupPeriod() int
	// Analyze evaluates the last bar of w. st carries cross-over memory between
	// calls; a nil st evaluates with a throwaway state.
	Analyze(w candle.Window, st *State) (Analysis, error)
	// ExitRule is the risk rule that closes positions opened by this strategy.
	ExitRule() risk.Rule
}

// New builds the strategy for t. Zero-valued params take their defaults.
func New(t Type, params Params, provider indicator.Provider, logger *zap.Logger) (Strategy, error) {
	if provider == nil {
		provider = indicator.Default{}
	}
	logger = utils.OrNop(logger)

	p := params.WithDefaults()
	if err := p.Validate(t); err != nil {
		return nil, err
	}

	switch t {
	case TypeRSI:
		return newRSIStrategy(p, provider, logger), nil
	case TypeProfitable:
		return newProfitableStrategy(p, provider, logger), nil
	case TypeQullaMaggie:
		return newQullaMaggieStrategy(p, provider, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, t)
	}
}

func checkWindow(s Strategy, w candle.Window) error {
	if len(w.High) != len(w.Close) || len(w.Low) != len(w.Close) {
		return fmt.Errorf("%s: %w: close=%d high=%d low=%d",
			s.Name(), indicator.ErrLengthMismatch, len(w.Close), len(w.High), len(w.Low))
	}
	if w.Len() < s.WarmupPeriod() {
		return fmt.Errorf("%s: %w: need %d bars, got %d", s.Name(), ErrInsufficientHistory, s.WarmupPeriod(), w.Len())
	}
	return nil
}

func warmup(lookbacks ...int) int {
	n := candle.DefaultWindowSize
	for _, l := range lookbacks {
		if l > n {
			n = l
		}
	}
	return n
}

func hold(reason string) Analysis {
	return Analysis{Signal: Hold, Reason: reason}
}
