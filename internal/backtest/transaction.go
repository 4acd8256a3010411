package backtest

import "time"

// Transaction is one filled order. Quantity is signed: positive for buys,
// negative for sells. Value is the cash flow before commission.
type Transaction struct {
	Timestamp  time.Time `json:"timestamp"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Value      float64   `json:"value"`
	Commission float64   `json:"commission"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason,omitempty"`
}

// IsBuy reports whether the transaction added to the position.
func (t Transaction) IsBuy() bool { return t.Quantity > 0 }

// Side returns "buy" or "sell".
func (t Transaction) Side() string {
	if t.IsBuy() {
		return "buy"
	}
	return "sell"
}

// EquityPoint is the marked-to-market account value at a bar's close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

func newTransaction(ts time.Time, f Fill, reason string) Transaction {
	return Transaction{
		Timestamp:  ts,
		Quantity:   f.Quantity.InexactFloat64(),
		Price:      f.Price.InexactFloat64(),
		Value:      f.Value.InexactFloat64(),
		Commission: f.Commission.InexactFloat64(),
		PnL:        f.PnL.InexactFloat64(),
		Reason:     reason,
	}
}
