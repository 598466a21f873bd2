package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one entry of the desired position book: the target holding for a
// symbol as computed by the pricing pass, not what the venue currently holds.
type Position struct {
	Symbol           string          `json:"symbol"`
	Shares           decimal.Decimal `json:"shares"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	UnrealizedPNL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPNLPct decimal.Decimal `json:"unrealized_pnl_pct"`
	Sector           string          `json:"sector,omitempty"`
	StopLoss         decimal.Decimal `json:"stop_loss"`
}

// PortfolioBook is the persisted desired position store plus portfolio totals.
// Invariant on every write: PortfolioValue = sum(MarketValue) + Cash and
// TotalReturn = PortfolioValue - baseline investment.
type PortfolioBook struct {
	Positions       map[string]Position        `json:"positions"`
	Benchmarks      map[string]decimal.Decimal `json:"benchmarks,omitempty"`
	Cash            decimal.Decimal            `json:"cash"`
	PortfolioValue  decimal.Decimal            `json:"portfolio_value"`
	TotalInvested   decimal.Decimal            `json:"total_invested"`
	TotalReturn     decimal.Decimal            `json:"total_return"`
	TotalReturnPct  decimal.Decimal            `json:"total_return_pct"`
	PositionsCount  int                        `json:"positions_count"`
	MaxLoss         decimal.Decimal            `json:"max_loss"`
	LastUpdate      string                     `json:"last_update"`
	LastSyncCheck   string                     `json:"last_sync_check,omitempty"`
	ExperimentStart string                     `json:"experiment_start,omitempty"`
}

// PositionsValue sums the market value of every position in the book.
func (b *PortfolioBook) PositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.Positions {
		total = total.Add(p.MarketValue)
	}
	return total
}

// TrailingStopRecord tracks the trailing-stop state for one symbol. The
// engine's trailing-stop pass is its only writer. While Active is true,
// HighestPrice and CurrentStopPrice only ever move up.
type TrailingStopRecord struct {
	ActivatedDate    time.Time       `json:"activated_date"`
	ActivationPrice  decimal.Decimal `json:"activation_price"`
	HighestPrice     decimal.Decimal `json:"highest_price"`
	CurrentStopPrice decimal.Decimal `json:"current_stop_price"`
	Active           bool            `json:"active"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// TrailingStopTable is the persisted per-symbol trailing-stop state.
type TrailingStopTable map[string]*TrailingStopRecord

// ExecutionEvent describes a protective stop order that the venue filled.
// Ephemeral: it is journaled once and never read back by the engine.
type ExecutionEvent struct {
	Symbol         string          `json:"symbol"`
	OrderID        string          `json:"order_id"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	StopPrice      decimal.Decimal `json:"stop_price"`
	FilledAt       time.Time       `json:"filled_at"`
	Proceeds       decimal.Decimal `json:"proceeds"`
}

// ReconciliationDelta is the whole-share gap between the desired book and the
// venue's live holdings for one symbol. Not persisted.
type ReconciliationDelta struct {
	Symbol        string
	DesiredShares int64
	ActualShares  int64
	Delta         int64
}
