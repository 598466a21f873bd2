package pricing

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"stockpilot/internal/models"
)

const historyFile = "data/portfolio_history.csv"

// appendHistory writes the book's daily row into the history CSV. One row per
// calendar day: re-running the pass on the same day replaces that day's row
// instead of appending a duplicate.
//
// The column set is a function of the configured watch-list and benchmarks, so
// a config change shifts the schema. That is a breaking change: an existing
// file with a different header is rejected rather than rewritten.
func (u *Updater) appendHistory(book *models.PortfolioBook) error {
	header := u.historyHeader()
	row := u.historyRow(book)

	path := filepath.Join(u.store.Dir, historyFile)
	rows, err := readHistory(path)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		rows = [][]string{header}
	} else if !equalRow(rows[0], header) {
		return fmt.Errorf("%s: column set changed, refusing to rewrite history (got %d columns, file has %d)",
			path, len(header), len(rows[0]))
	}

	today := row[0]
	replaced := false
	for i := 1; i < len(rows); i++ {
		if rows[i][0] == today {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}

	return writeHistory(path, rows)
}

// historyHeader builds the deterministic column list: fixed portfolio columns,
// then per-benchmark price, then per-stock price/pnl columns in sorted symbol
// order.
func (u *Updater) historyHeader() []string {
	header := []string{
		"date", "portfolio_value", "cash", "positions_value",
		"total_invested", "total_return", "total_return_pct", "positions_count",
	}
	for _, symbol := range u.cfg.BenchmarkSymbols() {
		header = append(header, symbol+"_price")
	}
	for _, symbol := range u.cfg.Symbols() {
		header = append(header, symbol+"_price", symbol+"_pnl", symbol+"_pnl_pct")
	}
	return header
}

func (u *Updater) historyRow(book *models.PortfolioBook) []string {
	row := []string{
		u.now().Format("2006-01-02"),
		book.PortfolioValue.StringFixed(2),
		book.Cash.StringFixed(2),
		book.PositionsValue().StringFixed(2),
		book.TotalInvested.StringFixed(2),
		book.TotalReturn.StringFixed(2),
		book.TotalReturnPct.StringFixed(4),
		fmt.Sprintf("%d", book.PositionsCount),
	}
	for _, symbol := range u.cfg.BenchmarkSymbols() {
		if price, ok := book.Benchmarks[symbol]; ok {
			row = append(row, price.StringFixed(2))
		} else {
			row = append(row, "")
		}
	}
	for _, symbol := range u.cfg.Symbols() {
		p := book.Positions[symbol]
		row = append(row,
			p.CurrentPrice.StringFixed(2),
			p.UnrealizedPNL.StringFixed(2),
			p.UnrealizedPNLPct.StringFixed(4),
		)
	}
	return row
}

func readHistory(path string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func writeHistory(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	f.Close()

	return os.Rename(tmp, path)
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
