// Package orders covers the one-shot order operations that sit outside the
// engine's run pipeline: the initial portfolio buy, static stop-loss
// placement, order status listing and emergency liquidation.
package orders

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/engine"
	"stockpilot/internal/market"
	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
)

// Manager places and inspects venue orders for the configured watch-list.
type Manager struct {
	cfg      *config.Config
	provider market.Provider
	store    *storage.Store

	now func() time.Time
}

func New(cfg *config.Config, provider market.Provider, store *storage.Store) *Manager {
	return &Manager{
		cfg:      cfg,
		provider: provider,
		store:    store,
		now:      time.Now,
	}
}

// PlaceInitialOrders submits a market BUY for every configured symbol sized as
// floor(allocation / current price). Truncation keeps each position at or
// under its allocation. One symbol failing does not stop the rest; failures
// are collected and reported once at the end.
func (m *Manager) PlaceInitialOrders() error {
	log.Println("=== Placing Initial Portfolio Orders ===")

	now := m.now()
	var records []storage.OrderRecord
	var failed []string

	for _, symbol := range m.cfg.Symbols() {
		stock := m.cfg.Stocks[symbol]

		price, err := market.FetchPrice(m.provider, symbol)
		if err != nil {
			log.Printf("ERROR: no price for %s, skipping: %v", symbol, err)
			failed = append(failed, symbol)
			continue
		}

		shares := stock.Allocation.Div(price).IntPart()
		if shares <= 0 {
			log.Printf("Skipping %s: allocation $%s buys no whole share at $%s",
				symbol, stock.Allocation.StringFixed(2), price.StringFixed(2))
			continue
		}

		qty := decimal.NewFromInt(shares)
		order, err := m.provider.PlaceMarketOrder(symbol, qty, "buy")
		if err != nil {
			log.Printf("ERROR: placing initial order for %s: %v", symbol, err)
			failed = append(failed, symbol)
			continue
		}

		log.Printf("Order placed: BUY %d shares of %s at ~$%s", shares, symbol, price.StringFixed(2))
		records = append(records, storage.OrderRecord{
			Symbol:         symbol,
			OrderID:        order.ID,
			Shares:         shares,
			EstimatedPrice: &price,
			Timestamp:      now.Format(time.RFC3339),
		})
	}

	m.journal(now, "initial_buy", records)
	log.Printf("Total orders placed: %d", len(records))

	if len(failed) > 0 {
		return fmt.Errorf("%w: initial orders failed for %s", engine.ErrVenueRejected, strings.Join(failed, ", "))
	}
	return nil
}

// PlaceStopLossOrders submits one GTC sell-stop per book position at the
// static stop price from config. The trailing-stop synchronizer supersedes
// these once a symbol arms.
func (m *Manager) PlaceStopLossOrders() error {
	log.Println("=== Placing Stop Loss Orders ===")

	book, err := m.store.LoadBook()
	if err != nil {
		return fmt.Errorf("no position data for stop loss orders: %w", err)
	}

	now := m.now()
	var records []storage.OrderRecord
	var failed []string

	for _, symbol := range sortedPositionSymbols(book) {
		pos := book.Positions[symbol]
		stock, ok := m.cfg.Stocks[symbol]
		if !ok {
			log.Printf("Skipping %s: not in the configured watch-list", symbol)
			continue
		}

		shares := pos.Shares.IntPart()
		if shares <= 0 {
			continue
		}

		qty := decimal.NewFromInt(shares)
		order, err := m.provider.PlaceStopOrder(symbol, qty, stock.StopLoss)
		if err != nil {
			log.Printf("ERROR: placing stop loss for %s: %v", symbol, err)
			failed = append(failed, symbol)
			continue
		}

		log.Printf("Stop loss set: SELL %d shares of %s at $%s", shares, symbol, stock.StopLoss.StringFixed(2))
		stopPrice := stock.StopLoss
		records = append(records, storage.OrderRecord{
			Symbol:    symbol,
			OrderID:   order.ID,
			Shares:    shares,
			StopPrice: &stopPrice,
			StopType:  "fixed",
			Timestamp: now.Format(time.RFC3339),
		})
	}

	m.journal(now, "stop_loss", records)

	if len(failed) > 0 {
		return fmt.Errorf("%w: stop loss orders failed for %s", engine.ErrVenueRejected, strings.Join(failed, ", "))
	}
	return nil
}

// statusLimit caps how many recent orders the status check prints.
const statusLimit = 10

// CheckOrderStatus lists recent venue orders for configured symbols and
// prints the most recent few.
func (m *Manager) CheckOrderStatus() ([]models.Order, error) {
	log.Println("=== Checking Order Status ===")

	orders, err := m.provider.ListOrders(models.OrderQuery{Status: "all", Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("%w: listing orders: %v", engine.ErrDataUnavailable, err)
	}

	var recent []models.Order
	for _, o := range orders {
		if _, ok := m.cfg.Stocks[o.Symbol]; ok {
			recent = append(recent, o)
		}
	}

	start := 0
	if len(recent) > statusLimit {
		start = len(recent) - statusLimit
	}
	for _, o := range recent[start:] {
		priceInfo := ""
		if o.FilledAvgPrice.GreaterThan(decimal.Zero) {
			priceInfo = fmt.Sprintf(" at $%s", o.FilledAvgPrice.StringFixed(2))
		}
		log.Printf("%s: %s %s %s%s",
			strings.ToUpper(o.Status), strings.ToUpper(o.Side), o.Qty.String(), o.Symbol, priceInfo)
	}

	return recent, nil
}

// EmergencyLiquidate cancels every open order for the symbol and market-sells
// the full venue position. It acts on what the venue actually holds, not on
// the book.
func (m *Manager) EmergencyLiquidate(symbol string) error {
	log.Printf("=== EMERGENCY LIQUIDATION: %s ===", symbol)

	positions, err := m.provider.ListPositions()
	if err != nil {
		return fmt.Errorf("%w: listing positions: %v", engine.ErrDataUnavailable, err)
	}

	qty := decimal.Zero
	for _, pos := range positions {
		if pos.Symbol == symbol {
			qty = pos.Qty
			break
		}
	}
	shares := qty.IntPart()
	if shares <= 0 {
		return fmt.Errorf("no position found for %s", symbol)
	}

	open, err := m.provider.ListOrders(models.OrderQuery{Status: "open", Symbols: []string{symbol}})
	if err != nil {
		return fmt.Errorf("%w: listing open orders for %s: %v", engine.ErrDataUnavailable, symbol, err)
	}
	for _, o := range open {
		if err := m.provider.CancelOrder(o.ID); err != nil {
			return fmt.Errorf("%w: canceling order %s before liquidation: %v", engine.ErrVenueRejected, o.ID, err)
		}
		log.Printf("Cancelled order %s", o.ID)
	}

	now := m.now()
	order, err := m.provider.PlaceMarketOrder(symbol, decimal.NewFromInt(shares), "sell")
	if err != nil {
		return fmt.Errorf("%w: emergency sell for %s: %v", engine.ErrVenueRejected, symbol, err)
	}

	log.Printf("EMERGENCY SELL: %d shares of %s, order %s", shares, symbol, order.ID)
	m.journal(now, "emergency_liquidation", []storage.OrderRecord{{
		Symbol:    symbol,
		OrderID:   order.ID,
		Shares:    shares,
		Timestamp: now.Format(time.RFC3339),
	}})
	return nil
}

// journal appends the operation's orders to the monthly order journal. Audit
// loss is logged, never fatal: the orders are already at the venue.
func (m *Manager) journal(now time.Time, orderType string, records []storage.OrderRecord) {
	if len(records) == 0 {
		return
	}
	entry := storage.OrderJournalEntry{
		Timestamp:   now.Format(time.RFC3339),
		OrderType:   orderType,
		Orders:      records,
		TotalOrders: len(records),
	}
	if err := m.store.AppendOrderJournal(now, entry); err != nil {
		log.Printf("ERROR: Failed to journal %s orders: %v", orderType, err)
	}
}

func sortedPositionSymbols(book *models.PortfolioBook) []string {
	symbols := make([]string, 0, len(book.Positions))
	for symbol := range book.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
