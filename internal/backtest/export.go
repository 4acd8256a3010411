package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	TradesFile = "backtest_trades.csv"
	EquityFile = "backtest_equity.csv"
)

// WriteCSV saves the transaction log and the equity curve of res under dir.
func WriteCSV(dir string, res Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteCSV | create %s: %w", dir, err)
	}

	tradeRows := [][]string{{"Trade#", "Time", "Side", "Quantity", "Price", "Value", "Commission", "PnL", "Reason"}}
	for i, t := range res.Transactions {
		tradeRows = append(tradeRows, []string{
			strconv.Itoa(i + 1),
			t.Timestamp.Format(time.RFC3339),
			t.Side(),
			strconv.FormatFloat(t.Quantity, 'f', QuantityPlaces, 64),
			fmt.Sprintf("%.2f", t.Price),
			fmt.Sprintf("%.2f", t.Value),
			fmt.Sprintf("%.2f", t.Commission),
			fmt.Sprintf("%.2f", t.PnL),
			t.Reason,
		})
	}

	equityRows := [][]string{{"Step", "Time", "Equity"}}
	for i, p := range res.EquityCurve {
		equityRows = append(equityRows, []string{
			strconv.Itoa(i + 1),
			p.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%.2f", p.Value),
		})
	}

	if err := saveCSV(filepath.Join(dir, TradesFile), tradeRows); err != nil {
		return err
	}
	return saveCSV(filepath.Join(dir, EquityFile), equityRows)
}

// saveCSV saves data to a CSV file
func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("saveCSV | create %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("saveCSV | write %s: %w", filename, err)
	}
	return f.Close()
}
