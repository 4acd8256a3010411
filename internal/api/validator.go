package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/tfutils"
)

// Validator checks request payloads before they reach the engine.
type Validator struct {
	symbolRegex *regexp.Regexp
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator returns the singleton validator instance
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			symbolRegex: regexp.MustCompile(`^[A-Za-z0-9]{2,15}([-_/][A-Za-z0-9]{2,15})?$`),
		}
	})
	return validatorInstance
}

// ValidateMarket validates the strategy and candle source of a request and
// returns the parsed strategy type.
func (v *Validator) ValidateMarket(req *MarketRequest) (strategy.Type, error) {
	t, err := strategy.ParseType(sanitizeInput(req.StrategyType))
	if err != nil {
		return "", fmt.Errorf("invalid strategy_type %q. Supported values: RSI, PROFITABLE, QULLAMAGGIE", req.StrategyType)
	}

	req.Symbol = sanitizeInput(req.Symbol)
	req.Timeframe = sanitizeInput(req.Timeframe)

	if len(req.Candles) > 0 {
		if req.Symbol != "" {
			if err := v.validateSymbol(req.Symbol); err != nil {
				return "", err
			}
		}
		return t, nil
	}

	if err := v.validateSymbol(req.Symbol); err != nil {
		return "", err
	}
	if _, err := tfutils.ParseTimeframe(req.Timeframe); err != nil {
		return "", fmt.Errorf("%w '%s'. Supported values: %s",
			err, req.Timeframe, strings.Join(tfutils.GetSupportedTimeframes(), ", "))
	}
	if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
		return "", errors.New("start must be before end")
	}
	return t, nil
}

func (v *Validator) ValidateSignal(req *SignalRequest) (strategy.Type, error) {
	t, err := v.ValidateMarket(&req.MarketRequest)
	if err != nil {
		return "", err
	}
	if req.EntryPrice != nil && *req.EntryPrice <= 0 {
		return "", errors.New("entry_price must be positive")
	}
	return t, nil
}

// ValidateBacktest validates req and resolves its broker parameters, using
// the defaults for omitted fields.
func (v *Validator) ValidateBacktest(req *BacktestRequest) (strategy.Type, backtest.Params, error) {
	t, err := v.ValidateMarket(&req.MarketRequest)
	if err != nil {
		return "", backtest.Params{}, err
	}

	bp := backtest.DefaultParams()
	if req.InitialCash != nil {
		if *req.InitialCash <= 0 {
			return "", backtest.Params{}, errors.New("initial_cash must be positive")
		}
		bp.InitialCash = *req.InitialCash
	}
	if req.CommissionRate != nil {
		if *req.CommissionRate < 0 || *req.CommissionRate >= 1 {
			return "", backtest.Params{}, errors.New("commission_rate must be in [0, 1)")
		}
		bp.CommissionRate = *req.CommissionRate
	}
	if req.BuyPercent != nil {
		if *req.BuyPercent <= 0 || *req.BuyPercent > 100 {
			return "", backtest.Params{}, errors.New("buy_percent must be in (0, 100]")
		}
		bp.BuyPercent = *req.BuyPercent
	}
	if req.SellPercent != nil {
		if *req.SellPercent <= 0 || *req.SellPercent > 100 {
			return "", backtest.Params{}, errors.New("sell_percent must be in (0, 100]")
		}
		bp.SellPercent = *req.SellPercent
	}
	return t, bp, nil
}

func (v *Validator) validateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol is required when no candles are provided")
	}
	if !v.symbolRegex.MatchString(symbol) {
		return errors.New("symbol must be letters and digits, optionally split by '-', '_' or '/'")
	}
	return nil
}

// sanitizeInput trims whitespace, drops control characters and caps length.
func sanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = strings.Map(func(r rune) rune {
		if r < 32 {
			return -1
		}
		return r
	}, input)
	if len(input) > 100 {
		input = input[:100]
	}
	return input
}
