// Package pricing implements the daily pricing pass: fetch fresh prices for
// the watch-list and benchmarks, rebuild the desired position book from the
// configured allocations and append the day's row to the history CSV.
package pricing

import (
	"fmt"
	"log"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/market"
	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
)

// Updater runs the daily pricing pass.
type Updater struct {
	cfg      *config.Config
	provider market.Provider
	store    *storage.Store

	now func() time.Time
}

func New(cfg *config.Config, provider market.Provider, store *storage.Store) *Updater {
	return &Updater{
		cfg:      cfg,
		provider: provider,
		store:    store,
		now:      time.Now,
	}
}

// Run performs the full pricing pass. Watch-list prices are all-or-nothing:
// a single missing price aborts before anything is written, so the book on
// disk is never a blend of fresh and stale data. Benchmark prices are
// best-effort display data and never block the update.
func (u *Updater) Run() error {
	log.Println("=== Daily Portfolio Update ===")

	account, err := u.provider.GetAccount()
	if err != nil {
		return fmt.Errorf("cannot connect to venue: %w", err)
	}
	log.Printf("Connected - account equity: $%s", account.Equity.StringFixed(2))

	prices, err := u.watchListPrices()
	if err != nil {
		return err
	}

	benchmarks := u.benchmarkPrices()

	positions := u.calculatePositions(prices)
	book := u.buildBook(positions, benchmarks)

	if err := u.store.SaveBook(book); err != nil {
		return fmt.Errorf("saving position book: %w", err)
	}
	if err := u.appendHistory(book); err != nil {
		return fmt.Errorf("updating history: %w", err)
	}

	log.Printf("Portfolio Value: $%s", book.PortfolioValue.StringFixed(2))
	log.Printf("Total Return: $%s (%s%%)", book.TotalReturn.StringFixed(2),
		book.TotalReturnPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
	log.Printf("Active Positions: %d", book.PositionsCount)
	log.Printf("Cash: $%s", book.Cash.StringFixed(2))
	for _, symbol := range u.cfg.Symbols() {
		p := book.Positions[symbol]
		log.Printf("%s: $%s | P&L: $%s (%s%%)", symbol,
			p.CurrentPrice.StringFixed(2), p.UnrealizedPNL.StringFixed(2),
			p.UnrealizedPNLPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
	return nil
}

// watchListPrices fetches a price for every configured symbol. Any miss fails
// the whole pass.
func (u *Updater) watchListPrices() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(u.cfg.Stocks))
	for _, symbol := range u.cfg.Symbols() {
		price, err := market.FetchPrice(u.provider, symbol)
		if err != nil {
			return nil, fmt.Errorf("watch-list price for %s: %w", symbol, err)
		}
		prices[symbol] = price
		log.Printf("%s: $%s", symbol, price.StringFixed(2))
	}
	return prices, nil
}

// benchmarkPrices fetches benchmark ETF prices; failures are logged and the
// symbol is simply omitted.
func (u *Updater) benchmarkPrices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(u.cfg.Benchmarks))
	for _, symbol := range u.cfg.BenchmarkSymbols() {
		price, err := market.FetchPrice(u.provider, symbol)
		if err != nil {
			log.Printf("WARNING: could not fetch benchmark price for %s: %v", symbol, err)
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// calculatePositions derives the desired position for every configured symbol.
// Share count is the allocation at the planned entry target; the position is
// then marked to the current price.
func (u *Updater) calculatePositions(prices map[string]decimal.Decimal) map[string]models.Position {
	positions := make(map[string]models.Position, len(u.cfg.Stocks))

	for symbol, stock := range u.cfg.Stocks {
		current := prices[symbol]
		shares := stock.Allocation.Div(stock.EntryTarget)
		marketValue := shares.Mul(current)
		pnl := marketValue.Sub(stock.Allocation)

		pnlPct := decimal.Zero
		if stock.Allocation.GreaterThan(decimal.Zero) {
			pnlPct = pnl.Div(stock.Allocation)
		}

		positions[symbol] = models.Position{
			Symbol:           symbol,
			Shares:           shares.Round(2),
			EntryPrice:       stock.EntryTarget,
			CurrentPrice:     current,
			MarketValue:      marketValue.Round(2),
			CostBasis:        stock.Allocation,
			UnrealizedPNL:    pnl.Round(2),
			UnrealizedPNLPct: pnlPct.Round(4),
			Sector:           stock.Sector,
			StopLoss:         stock.StopLoss,
		}
	}
	return positions
}

// buildBook assembles the full book document with portfolio totals. Cash is
// whatever the baseline did not allocate to positions.
func (u *Updater) buildBook(positions map[string]models.Position, benchmarks map[string]decimal.Decimal) *models.PortfolioBook {
	baseline := u.cfg.Portfolio.BaselineInvestment

	totalAllocation := decimal.Zero
	for _, stock := range u.cfg.Stocks {
		totalAllocation = totalAllocation.Add(stock.Allocation)
	}
	cash := baseline.Sub(totalAllocation)

	book := &models.PortfolioBook{
		Positions:       positions,
		Benchmarks:      benchmarks,
		Cash:            cash.Round(2),
		TotalInvested:   baseline,
		PositionsCount:  len(positions),
		MaxLoss:         baseline.Mul(u.cfg.Portfolio.MaxPortfolioLossPct).Round(2),
		LastUpdate:      u.now().Format(time.RFC3339),
		ExperimentStart: u.cfg.Portfolio.ExperimentStartDate,
	}

	book.PortfolioValue = book.PositionsValue().Add(book.Cash).Round(2)
	book.TotalReturn = book.PortfolioValue.Sub(baseline).Round(2)
	if baseline.GreaterThan(decimal.Zero) {
		book.TotalReturnPct = book.TotalReturn.Div(baseline).Round(4)
	}
	return book
}
