package backtest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityPlaces is the precision order quantities are truncated to. An order
// that truncates to zero is rejected.
const QuantityPlaces = 8

var (
	ErrZeroSize             = errors.New("order size rounds to zero")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidPrice         = errors.New("price must be positive")
)

var hundred = decimal.NewFromInt(100)

// Fill is the outcome of one executed market order.
type Fill struct {
	Quantity   decimal.Decimal // signed: positive buys, negative sells
	Price      decimal.Decimal
	Value      decimal.Decimal // cash flow before commission: negative buys, positive sells
	Commission decimal.Decimal
	PnL        decimal.Decimal // realized on sells, net of the sell commission
}

// Broker simulates a single-asset, long-only cash account. Orders fill fully
// at the given price; commission is charged to cash only.
type Broker struct {
	cash           decimal.Decimal
	position       decimal.Decimal
	avgPrice       decimal.Decimal
	commissionRate decimal.Decimal
}

// NewBroker creates a broker holding cash and no position.
func NewBroker(cash, commissionRate float64) *Broker {
	return &Broker{
		cash:           decimal.NewFromFloat(cash),
		commissionRate: decimal.NewFromFloat(commissionRate),
	}
}

func (b *Broker) Cash() decimal.Decimal     { return b.cash }
func (b *Broker) Position() decimal.Decimal { return b.position }
func (b *Broker) AvgPrice() decimal.Decimal { return b.avgPrice }

// HasPosition reports whether any quantity is held.
func (b *Broker) HasPosition() bool { return b.position.IsPositive() }

// Value marks the account to market at price.
func (b *Broker) Value(price float64) decimal.Decimal {
	return b.cash.Add(b.position.Mul(decimal.NewFromFloat(price)))
}

// BuySize is the quantity a buy of pct percent of cash buys at price, after
// reserving room for commission.
func (b *Broker) BuySize(price, pct float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return decimal.Zero
	}
	maxOrderCash := b.cash.Div(decimal.NewFromInt(1).Add(b.commissionRate))
	value := maxOrderCash.Mul(decimal.NewFromFloat(pct)).Div(hundred)
	return value.Div(p).Truncate(QuantityPlaces)
}

// SellSize is pct percent of the held position. 100 percent or more sells
// everything.
func (b *Broker) SellSize(pct float64) decimal.Decimal {
	if pct >= 100 {
		return b.position
	}
	return b.position.Mul(decimal.NewFromFloat(pct)).Div(hundred).Truncate(QuantityPlaces)
}

// Buy spends pct percent of the available cash, net of commission.
func (b *Broker) Buy(price, pct float64) (Fill, error) {
	return b.buyQuantity(price, b.BuySize(price, pct))
}

// Sell sells pct percent of the held position.
func (b *Broker) Sell(price, pct float64) (Fill, error) {
	return b.sellQuantity(price, b.SellSize(pct))
}

// SellAll closes the whole position.
func (b *Broker) SellAll(price float64) (Fill, error) {
	return b.sellQuantity(price, b.position)
}

func (b *Broker) buyQuantity(price float64, qty decimal.Decimal) (Fill, error) {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return Fill{}, fmt.Errorf("buy at %v: %w", price, ErrInvalidPrice)
	}
	if !qty.IsPositive() {
		return Fill{}, fmt.Errorf("buy at %v: %w", price, ErrZeroSize)
	}

	cost := qty.Mul(p)
	commission := cost.Mul(b.commissionRate)
	if cost.Add(commission).GreaterThan(b.cash) {
		return Fill{}, fmt.Errorf("buy %s at %v needs %s, have %s: %w",
			qty, price, cost.Add(commission).StringFixed(2), b.cash.StringFixed(2), ErrInsufficientCash)
	}

	newPosition := b.position.Add(qty)
	b.avgPrice = b.position.Mul(b.avgPrice).Add(cost).Div(newPosition)
	b.position = newPosition
	b.cash = b.cash.Sub(cost).Sub(commission)

	return Fill{
		Quantity:   qty,
		Price:      p,
		Value:      cost.Neg(),
		Commission: commission,
		PnL:        decimal.Zero,
	}, nil
}

func (b *Broker) sellQuantity(price float64, qty decimal.Decimal) (Fill, error) {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return Fill{}, fmt.Errorf("sell at %v: %w", price, ErrInvalidPrice)
	}
	if !qty.IsPositive() {
		return Fill{}, fmt.Errorf("sell at %v: %w", price, ErrZeroSize)
	}
	if qty.GreaterThan(b.position) {
		return Fill{}, fmt.Errorf("sell %s, hold %s: %w", qty, b.position, ErrInsufficientPosition)
	}

	proceeds := qty.Mul(p)
	commission := proceeds.Mul(b.commissionRate)
	pnl := p.Sub(b.avgPrice).Mul(qty).Sub(commission)

	b.position = b.position.Sub(qty)
	b.cash = b.cash.Add(proceeds).Sub(commission)
	if b.position.IsZero() {
		b.avgPrice = decimal.Zero
	}

	return Fill{
		Quantity:   qty.Neg(),
		Price:      p,
		Value:      proceeds,
		Commission: commission,
		PnL:        pnl,
	}, nil
}
