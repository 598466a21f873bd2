package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider implements market.Provider and records every mutation so
// tests can assert on what reached the venue.
type mockProvider struct {
	account      *models.Account
	accountErr   error
	quotes       map[string]models.Quote
	bars         map[string]models.Bar
	positions    []models.BrokerPosition
	positionsErr error
	orderHistory []models.Order
	historyErr   error
	openOrders   map[string][]models.Order

	placedMarket []placedMarketOrder
	placedStops  []placedStopOrder
	canceled     []string
	placeErrs    map[string]error
}

type placedMarketOrder struct {
	Symbol string
	Qty    decimal.Decimal
	Side   string
}

type placedStopOrder struct {
	Symbol    string
	Qty       decimal.Decimal
	StopPrice decimal.Decimal
}

func (m *mockProvider) GetQuote(symbol string) (*models.Quote, error) {
	if q, ok := m.quotes[symbol]; ok {
		return &q, nil
	}
	return nil, fmt.Errorf("no quote for %s", symbol)
}

func (m *mockProvider) GetLatestBar(symbol string) (*models.Bar, error) {
	if b, ok := m.bars[symbol]; ok {
		return &b, nil
	}
	return nil, fmt.Errorf("no bar for %s", symbol)
}

func (m *mockProvider) GetAccount() (*models.Account, error) {
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	if m.account != nil {
		return m.account, nil
	}
	return &models.Account{Equity: decimal.NewFromInt(10000)}, nil
}

func (m *mockProvider) ListPositions() ([]models.BrokerPosition, error) {
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	return m.positions, nil
}

func (m *mockProvider) ListOrders(q models.OrderQuery) ([]models.Order, error) {
	if q.Status == "open" {
		var result []models.Order
		for _, symbol := range q.Symbols {
			for _, o := range m.openOrders[symbol] {
				if !m.wasCanceled(o.ID) {
					result = append(result, o)
				}
			}
		}
		return result, nil
	}
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.orderHistory, nil
}

func (m *mockProvider) PlaceMarketOrder(symbol string, qty decimal.Decimal, side string) (*models.Order, error) {
	if err := m.placeErrs[symbol]; err != nil {
		return nil, err
	}
	m.placedMarket = append(m.placedMarket, placedMarketOrder{Symbol: symbol, Qty: qty, Side: side})
	return &models.Order{ID: fmt.Sprintf("mkt-%d", len(m.placedMarket)), Symbol: symbol}, nil
}

func (m *mockProvider) PlaceStopOrder(symbol string, qty, stopPrice decimal.Decimal) (*models.Order, error) {
	if err := m.placeErrs[symbol]; err != nil {
		return nil, err
	}
	m.placedStops = append(m.placedStops, placedStopOrder{Symbol: symbol, Qty: qty, StopPrice: stopPrice})
	return &models.Order{ID: fmt.Sprintf("stp-%d", len(m.placedStops)), Symbol: symbol}, nil
}

func (m *mockProvider) CancelOrder(orderID string) error {
	m.canceled = append(m.canceled, orderID)
	return nil
}

func (m *mockProvider) wasCanceled(id string) bool {
	for _, c := range m.canceled {
		if c == id {
			return true
		}
	}
	return false
}

// openStopCount reports how many protective sell-stops remain live for a
// symbol: configured open orders minus cancellations plus new submissions.
func (m *mockProvider) openStopCount(symbol string) int {
	count := 0
	for _, o := range m.openOrders[symbol] {
		if o.Type == "stop" && o.Side == "sell" && !m.wasCanceled(o.ID) {
			count++
		}
	}
	for i, p := range m.placedStops {
		if p.Symbol == symbol && !m.wasCanceled(fmt.Sprintf("stp-%d", i+1)) {
			count++
		}
	}
	return count
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

var testNow = time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Stocks: map[string]config.StockConfig{
			"AAPL": {Allocation: d(1000), EntryTarget: d(100), StopLoss: d(90)},
			"MSFT": {Allocation: d(2000), EntryTarget: d(200), StopLoss: d(180)},
		},
		Portfolio: config.PortfolioConfig{
			BaselineInvestment:   d(10000),
			TrailingStopTrigger:  d(0.05),
			TrailingStopDistance: d(0.08),
			MaxPortfolioLossPct:  d(0.15),
		},
	}
}

func testEngine(t *testing.T, provider *mockProvider) (*Engine, *storage.Store) {
	t.Helper()
	store := storage.NewStore(t.TempDir())
	e := New(testConfig(), provider, store)
	e.now = func() time.Time { return testNow }
	return e, store
}

func testBook() *models.PortfolioBook {
	return &models.PortfolioBook{
		Positions: map[string]models.Position{
			"AAPL": {
				Symbol:       "AAPL",
				Shares:       decimal.NewFromInt(10),
				EntryPrice:   d(100),
				CurrentPrice: d(110),
				MarketValue:  d(1100),
				CostBasis:    d(1000),
			},
			"MSFT": {
				Symbol:       "MSFT",
				Shares:       decimal.NewFromInt(10),
				EntryPrice:   d(200),
				CurrentPrice: d(205),
				MarketValue:  d(2050),
				CostBasis:    d(2000),
			},
		},
		Cash:           d(7000),
		PortfolioValue: d(10150),
		PositionsCount: 2,
	}
}

func TestRun_VenueUnreachableAborts(t *testing.T) {
	provider := &mockProvider{accountErr: errors.New("connection refused")}
	e, store := testEngine(t, provider)
	require.NoError(t, store.SaveBook(testBook()))

	err := e.Run()
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Empty(t, provider.placedMarket, "no orders should be placed when the venue is unreachable")
	assert.Empty(t, provider.placedStops)
}

func TestRun_MissingBookSkipsStages(t *testing.T) {
	provider := &mockProvider{}
	e, _ := testEngine(t, provider)

	// No book on disk: every book-driven stage reports nothing to do and the
	// run still succeeds.
	require.NoError(t, e.Run())
	assert.Empty(t, provider.placedMarket)
}

func TestRun_StoppedOutSymbolIsNotRebought(t *testing.T) {
	filledAt := testNow.Add(-2 * time.Hour)
	stopPrice := d(101.2)
	provider := &mockProvider{
		// AAPL was stopped out at the venue; only MSFT remains held.
		positions: []models.BrokerPosition{
			{Symbol: "MSFT", Qty: decimal.NewFromInt(10)},
		},
		orderHistory: []models.Order{
			{
				ID:             "stop-fill-1",
				Symbol:         "AAPL",
				Type:           "stop",
				Side:           "sell",
				Status:         "filled",
				FilledQty:      decimal.NewFromInt(10),
				FilledAvgPrice: d(101),
				StopPrice:      &stopPrice,
				FilledAt:       &filledAt,
			},
		},
	}
	e, store := testEngine(t, provider)
	require.NoError(t, store.SaveBook(testBook()))

	require.NoError(t, e.Run())

	// Backfill ran before reconciliation, so AAPL left the book and the
	// reconciler never re-bought it.
	for _, o := range provider.placedMarket {
		assert.NotEqual(t, "AAPL", o.Symbol, "stopped-out symbol must not be re-bought")
	}

	book, err := store.LoadBook()
	require.NoError(t, err)
	_, held := book.Positions["AAPL"]
	assert.False(t, held, "AAPL should be removed from the book")

	// MSFT is protected by exactly one resting stop after the run.
	assert.Equal(t, 1, provider.openStopCount("MSFT"))
}
