package engine

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
)

// Reconcile computes the whole-share gap between the desired book and the
// venue's live holdings, one delta per desired symbol in sorted order.
// Fractional desired shares are a config-time artifact; orders are always in
// whole shares, so both sides are rounded before comparing. Symbols the venue
// holds but the book does not are deliberately ignored here: the execution
// detector runs first and owns that gap, which keeps the reconciler from
// re-buying a symbol the venue just stopped out.
func Reconcile(desired, actual map[string]decimal.Decimal) []models.ReconciliationDelta {
	symbols := make([]string, 0, len(desired))
	for s := range desired {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	deltas := make([]models.ReconciliationDelta, 0, len(symbols))
	for _, symbol := range symbols {
		want := desired[symbol].Round(0).IntPart()
		have := actual[symbol].Round(0).IntPart()
		deltas = append(deltas, models.ReconciliationDelta{
			Symbol:        symbol,
			DesiredShares: want,
			ActualShares:  have,
			Delta:         want - have,
		})
	}
	return deltas
}

// SyncPositions reconciles the desired book against the venue and submits
// market orders (time-in-force day) to close each gap. A failed submission
// for one symbol never aborts the rest; failures are collected and reported
// together.
func (e *Engine) SyncPositions() error {
	book, err := e.store.LoadBook()
	if err != nil {
		return asInconsistent(err)
	}

	positions, err := e.provider.ListPositions()
	if err != nil {
		return fmt.Errorf("%w: listing venue positions: %v", ErrDataUnavailable, err)
	}

	desired := make(map[string]decimal.Decimal, len(book.Positions))
	for symbol, pos := range book.Positions {
		desired[symbol] = pos.Shares
	}
	actual := make(map[string]decimal.Decimal, len(positions))
	for _, pos := range positions {
		actual[pos.Symbol] = pos.Qty
	}

	var placed []storage.SyncOrderRecord
	var failures []string

	for _, d := range Reconcile(desired, actual) {
		if d.Delta == 0 {
			log.Printf("[%s] Venue matches book (%d shares)", d.Symbol, d.ActualShares)
			continue
		}

		side, qty := "buy", d.Delta
		if d.Delta < 0 {
			side, qty = "sell", -d.Delta
		}

		log.Printf("[%s] Book wants %d, venue holds %d: %s %d shares",
			d.Symbol, d.DesiredShares, d.ActualShares, strings.ToUpper(side), qty)

		order, err := e.provider.PlaceMarketOrder(d.Symbol, decimal.NewFromInt(qty), side)
		if err != nil {
			log.Printf("ERROR: Sync order for %s failed: %v", d.Symbol, err)
			failures = append(failures, d.Symbol)
			continue
		}
		placed = append(placed, storage.SyncOrderRecord{
			Side:    side,
			Symbol:  d.Symbol,
			Qty:     qty,
			OrderID: order.ID,
		})
	}

	if len(placed) > 0 {
		now := e.now()
		entry := storage.SyncJournalEntry{
			Timestamp: now.Format(time.RFC3339),
			Type:      "position_sync",
			Orders:    placed,
		}
		if err := e.store.AppendSyncJournal(now, entry); err != nil {
			log.Printf("ERROR: Failed to journal sync orders: %v", err)
		}
		log.Printf("Placed %d sync orders", len(placed))
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: sync orders failed for %s", ErrVenueRejected, strings.Join(failures, ", "))
	}
	return nil
}
