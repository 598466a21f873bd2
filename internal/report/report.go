// Package report renders the stop-loss status report: per-symbol gain, the
// effective protective stop and how it got there, plus any position trading
// at or below its stop.
package report

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/engine"
	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Reporter builds the stop status report from the persisted documents.
type Reporter struct {
	cfg   *config.Config
	store *storage.Store

	now func() time.Time
}

func New(cfg *config.Config, store *storage.Store) *Reporter {
	return &Reporter{cfg: cfg, store: store, now: time.Now}
}

// Generate renders the report text.
func (r *Reporter) Generate() (string, error) {
	book, err := r.store.LoadBook()
	if err != nil {
		return "", fmt.Errorf("no position data available: %w", err)
	}
	table, err := r.store.LoadStops()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("=== Current Stop Loss Status ===\n")
	fmt.Fprintf(&b, "Report generated: %s\n\n", r.now().Format("2006-01-02 15:04:05"))

	for _, symbol := range sortedSymbols(book) {
		pos := book.Positions[symbol]
		gain := engine.Gain(pos.CurrentPrice, pos.EntryPrice)

		fmt.Fprintf(&b, "%s:\n", symbol)
		fmt.Fprintf(&b, "  Current Price: %s\n", usd(pos.CurrentPrice))
		fmt.Fprintf(&b, "  Entry Price: %s\n", usd(pos.EntryPrice))
		fmt.Fprintf(&b, "  Current Gain: %s%%\n", gain.Mul(decimal.NewFromInt(100)).StringFixed(2))

		if rec := table[symbol]; rec != nil && rec.Active {
			fmt.Fprintf(&b, "  Status: TRAILING STOP ACTIVE\n")
			fmt.Fprintf(&b, "  Highest Price: %s\n", usd(rec.HighestPrice))
			fmt.Fprintf(&b, "  Current Stop: %s\n", usd(rec.CurrentStopPrice))
			fmt.Fprintf(&b, "  Activated: %s\n", rec.ActivatedDate.Format("2006-01-02"))
		} else {
			fmt.Fprintf(&b, "  Status: Fixed Stop Loss\n")
			fmt.Fprintf(&b, "  Stop Price: %s\n", usd(r.cfg.Stocks[symbol].StopLoss))
			fmt.Fprintf(&b, "  Trailing Activates at: %s%% gain\n",
				r.cfg.Portfolio.TrailingStopTrigger.Mul(decimal.NewFromInt(100)).StringFixed(1))
		}
		b.WriteString("\n")
	}

	if triggered := engine.CheckStopTriggers(book, table, r.cfg.Stocks); len(triggered) > 0 {
		fmt.Fprintf(&b, "WARNING: %d positions at or below their stop!\n", len(triggered))
		for _, trig := range triggered {
			fmt.Fprintf(&b, "  %s: %s <= %s (%s)\n",
				trig.Symbol, usd(trig.CurrentPrice), usd(trig.StopPrice), trig.StopType)
		}
	}

	return b.String(), nil
}

// Write generates the report, prints it and saves it as the day's report file.
// Returns the written path.
func (r *Reporter) Write() (string, error) {
	text, err := r.Generate()
	if err != nil {
		return "", err
	}
	log.Print("\n" + text)

	dir := filepath.Join(r.store.Dir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("trailing_stops_%s.txt", r.now().Format("2006_01_02")))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("writing report %s: %w", path, err)
	}
	return path, nil
}

// usd renders a price as a display currency string ("$1,234.56").
func usd(v decimal.Decimal) string {
	cents := v.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func sortedSymbols(book *models.PortfolioBook) []string {
	symbols := make([]string, 0, len(book.Positions))
	for s := range book.Positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
