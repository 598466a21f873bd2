// Package market abstracts the brokerage execution venue and market data
// source behind a single interface so the engine can be tested against a mock
// and the venue swapped without touching the callers.
package market

import (
	"stockpilot/internal/models"

	"github.com/shopspring/decimal"
)

// Provider is the venue-facing surface the rest of the system depends on.
// Order mutations (place/cancel) are non-idempotent at-least-once calls:
// callers must never retry them.
type Provider interface {
	// Market data
	GetQuote(symbol string) (*models.Quote, error)
	GetLatestBar(symbol string) (*models.Bar, error)

	// Account & holdings
	GetAccount() (*models.Account, error)
	ListPositions() ([]models.BrokerPosition, error)

	// Orders
	ListOrders(q models.OrderQuery) ([]models.Order, error)
	PlaceMarketOrder(symbol string, qty decimal.Decimal, side string) (*models.Order, error)
	PlaceStopOrder(symbol string, qty decimal.Decimal, stopPrice decimal.Decimal) (*models.Order, error)
	CancelOrder(orderID string) error
}
