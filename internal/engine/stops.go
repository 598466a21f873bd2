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

// SyncStopOrders makes the venue's resting protective stops match the
// effective stop levels: for every live holding it cancels the existing
// sell-stop orders and submits exactly one new sell-stop (good until
// canceled) for the full share count. Other open order types for the symbol
// are left untouched. Idempotent; after a successful pass each symbol has at
// most one live protective stop. Cancel and re-submit are separate venue
// calls with no atomicity guarantee, which is acceptable because the cycle
// runs frequently.
func (e *Engine) SyncStopOrders(levels map[string]StopLevel) error {
	positions, err := e.provider.ListPositions()
	if err != nil {
		return fmt.Errorf("%w: listing venue positions: %v", ErrDataUnavailable, err)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	var placed []storage.OrderRecord
	var failures []string
	now := e.now()

	for _, pos := range positions {
		if pos.Qty.LessThanOrEqual(decimal.Zero) {
			continue
		}

		level, ok := levels[pos.Symbol]
		if !ok {
			// Holding without a book entry this run. Fall back to the static
			// configured stop; an unconfigured symbol is not ours to protect.
			stock, configured := e.cfg.Stocks[pos.Symbol]
			if !configured {
				log.Printf("[%s] Venue position has no configured stop, leaving untouched", pos.Symbol)
				continue
			}
			level = StopLevel{Price: stock.StopLoss}
		}
		if level.Price.LessThanOrEqual(decimal.Zero) {
			log.Printf("[%s] No usable stop price, skipping", pos.Symbol)
			continue
		}

		if err := e.cancelProtectiveStops(pos.Symbol); err != nil {
			log.Printf("ERROR: Listing open orders for %s: %v", pos.Symbol, err)
			failures = append(failures, pos.Symbol)
			continue
		}

		shares := pos.Qty.IntPart()
		if shares <= 0 {
			continue
		}

		order, err := e.provider.PlaceStopOrder(pos.Symbol, decimal.NewFromInt(shares), level.Price)
		if err != nil {
			log.Printf("ERROR: Stop order for %s failed: %v", pos.Symbol, err)
			failures = append(failures, pos.Symbol)
			continue
		}

		stopType := "fixed"
		if level.Trailing {
			stopType = "trailing"
		}
		log.Printf("[%s] Set %s stop: %d shares at $%s", pos.Symbol, stopType, shares, level.Price.StringFixed(2))

		stopPrice := level.Price
		placed = append(placed, storage.OrderRecord{
			Symbol:    pos.Symbol,
			OrderID:   order.ID,
			Shares:    shares,
			StopPrice: &stopPrice,
			StopType:  stopType,
			Timestamp: now.Format(time.RFC3339),
		})
	}

	if len(placed) > 0 {
		entry := storage.OrderJournalEntry{
			Timestamp:   now.Format(time.RFC3339),
			OrderType:   "stop_sync",
			Orders:      placed,
			TotalOrders: len(placed),
		}
		if err := e.store.AppendOrderJournal(now, entry); err != nil {
			log.Printf("ERROR: Failed to journal stop orders: %v", err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: stop sync failed for %s", ErrVenueRejected, strings.Join(failures, ", "))
	}
	return nil
}

// cancelProtectiveStops cancels every open sell-stop for the symbol. A cancel
// that fails because the order just went terminal is logged, not fatal: the
// execution detector will pick up the fill on the next run.
func (e *Engine) cancelProtectiveStops(symbol string) error {
	open, err := e.provider.ListOrders(models.OrderQuery{Status: "open", Symbols: []string{symbol}})
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.Type != "stop" || o.Side != "sell" {
			continue
		}
		if err := e.provider.CancelOrder(o.ID); err != nil {
			log.Printf("Warning: Failed to cancel stop order %s for %s: %v", o.ID, symbol, err)
			continue
		}
		log.Printf("[%s] Cancelled old stop order %s", symbol, o.ID)
	}
	return nil
}
