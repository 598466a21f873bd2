package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a generic order as reported by the brokerage venue.
type Order struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Qty            decimal.Decimal  `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	Type           string           `json:"type"`   // market, limit, stop
	Side           string           `json:"side"`   // buy, sell
	Status         string           `json:"status"` // new, filled, canceled, expired, rejected
	FilledAvgPrice decimal.Decimal  `json:"filled_avg_price"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	FilledAt       *time.Time       `json:"filled_at,omitempty"`
}

// OrderQuery narrows an order-history listing.
type OrderQuery struct {
	Status  string // open, closed, all
	Symbols []string
	After   time.Time
	Limit   int
}

// Quote represents a bid/ask quote.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// Bar represents a daily candlestick.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Account represents the venue account state.
type Account struct {
	ID             string
	Currency       string
	Equity         decimal.Decimal
	BuyingPower    decimal.Decimal
	Cash           decimal.Decimal
	PortfolioValue decimal.Decimal
}

// BrokerPosition represents a live holding at the venue. This is descriptive
// truth, as opposed to the prescriptive Position in the desired book.
type BrokerPosition struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}
