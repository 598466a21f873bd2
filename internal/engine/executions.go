package engine

import (
	"fmt"
	"log"
	"time"

	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	// executionLookback bounds how far back a fill counts as fresh.
	executionLookback = 24 * time.Hour
	// historyWindow bounds the order-history query itself.
	historyWindow = 7 * 24 * time.Hour
)

// DetectExecutedStops scans recent venue order history for protective
// sell-stops that filled within the lookback window while their symbol is
// still present in the desired book. The book-membership check is the
// idempotence mechanism: once backfilled the symbol is gone, so the same fill
// can never be processed twice.
func (e *Engine) DetectExecutedStops() ([]models.ExecutionEvent, error) {
	book, err := e.store.LoadBook()
	if err != nil {
		return nil, asInconsistent(err)
	}

	orders, err := e.provider.ListOrders(models.OrderQuery{
		Status: "all",
		After:  e.now().Add(-historyWindow),
		Limit:  100,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing order history: %v", ErrDataUnavailable, err)
	}

	cutoff := e.now().Add(-executionLookback)
	var events []models.ExecutionEvent

	for _, o := range orders {
		if _, ours := e.cfg.Stocks[o.Symbol]; !ours {
			continue
		}
		if o.Type != "stop" || o.Side != "sell" || o.Status != "filled" {
			continue
		}
		if o.FilledAt == nil || o.FilledAt.Before(cutoff) {
			continue
		}
		if _, held := book.Positions[o.Symbol]; !held {
			continue
		}

		stopPrice := decimal.Zero
		if o.StopPrice != nil {
			stopPrice = *o.StopPrice
		}
		events = append(events, models.ExecutionEvent{
			Symbol:         o.Symbol,
			OrderID:        o.ID,
			FilledQty:      o.FilledQty,
			FilledAvgPrice: o.FilledAvgPrice,
			StopPrice:      stopPrice,
			FilledAt:       *o.FilledAt,
			Proceeds:       o.FilledQty.Mul(o.FilledAvgPrice),
		})
		log.Printf("STOP EXECUTED: %s - %s shares at $%s",
			o.Symbol, o.FilledQty.String(), o.FilledAvgPrice.StringFixed(2))
	}

	return events, nil
}

// Backfill folds detected stop executions into the desired book: the symbol's
// position is removed, proceeds are added to cash, portfolio totals are
// recomputed against the configured baseline and the book is overwritten in a
// single atomic write. Each event is also appended to the executions journal.
func (e *Engine) Backfill(events []models.ExecutionEvent) error {
	if len(events) == 0 {
		return nil
	}

	book, err := e.store.LoadBook()
	if err != nil {
		return asInconsistent(err)
	}

	now := e.now()
	totalProceeds := decimal.Zero

	for _, ev := range events {
		delete(book.Positions, ev.Symbol)
		totalProceeds = totalProceeds.Add(ev.Proceeds)

		entry := storage.ExecutionJournalEntry{
			Timestamp:     now.Format(time.RFC3339),
			Type:          "stop_execution",
			Symbol:        ev.Symbol,
			ExecutionTime: ev.FilledAt.Format(time.RFC3339),
			FilledQty:     ev.FilledQty,
			FilledPrice:   ev.FilledAvgPrice,
			StopPrice:     ev.StopPrice,
			Proceeds:      ev.Proceeds,
			OrderID:       ev.OrderID,
		}
		if err := e.store.AppendExecutionJournal(now, entry); err != nil {
			// Audit loss only; the book update below still has to happen.
			log.Printf("ERROR: Failed to journal stop execution for %s: %v", ev.Symbol, err)
		}
	}

	baseline := e.cfg.Portfolio.BaselineInvestment
	book.Cash = book.Cash.Add(totalProceeds)
	book.PositionsCount = len(book.Positions)
	book.PortfolioValue = book.PositionsValue().Add(book.Cash)
	book.TotalReturn = book.PortfolioValue.Sub(baseline)
	if baseline.GreaterThan(decimal.Zero) {
		book.TotalReturnPct = book.TotalReturn.Div(baseline)
	}
	stamp := now.Format(time.RFC3339)
	book.LastUpdate = stamp
	book.LastSyncCheck = stamp

	if err := e.store.SaveBook(book); err != nil {
		return err
	}

	log.Printf("Backfilled %d stop executions, $%s in proceeds, portfolio value $%s",
		len(events), totalProceeds.StringFixed(2), book.PortfolioValue.StringFixed(2))
	return nil
}
