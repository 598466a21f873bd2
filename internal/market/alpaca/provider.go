// Package alpaca implements market.Provider against the Alpaca trading and
// market data APIs.
package alpaca

import (
	"fmt"

	"stockpilot/internal/market"
	"stockpilot/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider talks to Alpaca. Credentials come from the APCA_* environment
// variables, which the SDK clients read themselves.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

var _ market.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
	}
}

// --- Market data ---

func (p *Provider) GetQuote(symbol string) (*models.Quote, error) {
	q, err := p.mdClient.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("no quote found for %s", symbol)
	}
	return &models.Quote{
		Symbol:    symbol,
		BidPrice:  decimal.NewFromFloat(q.BidPrice),
		AskPrice:  decimal.NewFromFloat(q.AskPrice),
		Timestamp: q.Timestamp,
	}, nil
}

func (p *Provider) GetLatestBar(symbol string) (*models.Bar, error) {
	b, err := p.mdClient.GetLatestBar(symbol, marketdata.GetLatestBarRequest{})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("no bar found for %s", symbol)
	}
	return &models.Bar{
		Time:   b.Timestamp,
		Open:   decimal.NewFromFloat(b.Open),
		High:   decimal.NewFromFloat(b.High),
		Low:    decimal.NewFromFloat(b.Low),
		Close:  decimal.NewFromFloat(b.Close),
		Volume: int64(b.Volume),
	}, nil
}

// --- Account & holdings ---

func (p *Provider) GetAccount() (*models.Account, error) {
	a, err := p.tradeClient.GetAccount()
	if err != nil {
		return nil, err
	}
	return &models.Account{
		ID:             a.ID,
		Currency:       a.Currency,
		Equity:         a.Equity,
		BuyingPower:    a.BuyingPower,
		Cash:           a.Cash,
		PortfolioValue: a.PortfolioValue,
	}, nil
}

func (p *Provider) ListPositions() ([]models.BrokerPosition, error) {
	positions, err := p.tradeClient.GetPositions()
	if err != nil {
		return nil, err
	}

	var result []models.BrokerPosition
	for _, x := range positions {
		result = append(result, models.BrokerPosition{
			Symbol:         x.Symbol,
			Qty:            x.Qty,
			AvgEntryPrice:  x.AvgEntryPrice,
			CurrentPrice:   deref(x.CurrentPrice),
			MarketValue:    deref(x.MarketValue),
			UnrealizedPL:   deref(x.UnrealizedPL),
			UnrealizedPLPC: deref(x.UnrealizedPLPC),
		})
	}
	return result, nil
}

// --- Orders ---

func (p *Provider) ListOrders(q models.OrderQuery) ([]models.Order, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	orders, err := p.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status:  q.Status,
		Symbols: q.Symbols,
		After:   q.After,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.Order, 0, len(orders))
	for i := range orders {
		result = append(result, *mapOrder(&orders[i]))
	}
	return result, nil
}

func (p *Provider) PlaceMarketOrder(symbol string, qty decimal.Decimal, side string) (*models.Order, error) {
	o, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpaca.Side(side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: clientOrderID(),
	})
	if err != nil {
		return nil, err
	}
	return mapOrder(o), nil
}

func (p *Provider) PlaceStopOrder(symbol string, qty decimal.Decimal, stopPrice decimal.Decimal) (*models.Order, error) {
	o, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpaca.Sell,
		Type:          alpaca.Stop,
		TimeInForce:   alpaca.GTC,
		StopPrice:     &stopPrice,
		ClientOrderID: clientOrderID(),
	})
	if err != nil {
		return nil, err
	}
	return mapOrder(o), nil
}

func (p *Provider) CancelOrder(orderID string) error {
	return p.tradeClient.CancelOrder(orderID)
}

// --- Helpers ---

// clientOrderID tags every submission so duplicates are traceable at the
// venue even though this layer never retries mutations.
func clientOrderID() string {
	return "stockpilot-" + uuid.NewString()
}

func mapOrder(o *alpaca.Order) *models.Order {
	if o == nil {
		return nil
	}

	qty := decimal.Zero
	if o.Qty != nil {
		qty = *o.Qty
	}

	res := &models.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Qty:            qty,
		FilledQty:      o.FilledQty,
		Type:           string(o.Type),
		Side:           string(o.Side),
		Status:         o.Status,
		FilledAvgPrice: deref(o.FilledAvgPrice),
		StopPrice:      o.StopPrice,
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
	}
	return res
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
