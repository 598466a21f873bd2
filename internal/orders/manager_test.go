package orders

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/engine"
	"stockpilot/internal/models"
	"stockpilot/internal/storage"

	"github.com/shopspring/decimal"
)

type mockVenue struct {
	asks       map[string]float64
	positions  []models.BrokerPosition
	openOrders []models.Order
	history    []models.Order
	placeErrs  map[string]error

	marketOrders []placedOrder
	stopOrders   []placedOrder
	canceled     []string
}

type placedOrder struct {
	Symbol    string
	Qty       decimal.Decimal
	Side      string
	StopPrice decimal.Decimal
}

func (m *mockVenue) GetQuote(symbol string) (*models.Quote, error) {
	if ask, ok := m.asks[symbol]; ok {
		return &models.Quote{Symbol: symbol, AskPrice: decimal.NewFromFloat(ask)}, nil
	}
	return &models.Quote{Symbol: symbol}, nil
}

func (m *mockVenue) GetLatestBar(string) (*models.Bar, error) {
	return &models.Bar{}, nil
}

func (m *mockVenue) GetAccount() (*models.Account, error) {
	return &models.Account{Equity: decimal.NewFromInt(10000)}, nil
}

func (m *mockVenue) ListPositions() ([]models.BrokerPosition, error) {
	return m.positions, nil
}

func (m *mockVenue) ListOrders(q models.OrderQuery) ([]models.Order, error) {
	if q.Status == "open" {
		var result []models.Order
		for _, o := range m.openOrders {
			for _, s := range q.Symbols {
				if o.Symbol == s {
					result = append(result, o)
				}
			}
		}
		return result, nil
	}
	return m.history, nil
}

func (m *mockVenue) PlaceMarketOrder(symbol string, qty decimal.Decimal, side string) (*models.Order, error) {
	if err := m.placeErrs[symbol]; err != nil {
		return nil, err
	}
	m.marketOrders = append(m.marketOrders, placedOrder{Symbol: symbol, Qty: qty, Side: side})
	return &models.Order{ID: "mkt-" + symbol, Symbol: symbol}, nil
}

func (m *mockVenue) PlaceStopOrder(symbol string, qty, stopPrice decimal.Decimal) (*models.Order, error) {
	if err := m.placeErrs[symbol]; err != nil {
		return nil, err
	}
	m.stopOrders = append(m.stopOrders, placedOrder{Symbol: symbol, Qty: qty, StopPrice: stopPrice})
	return &models.Order{ID: "stp-" + symbol, Symbol: symbol}, nil
}

func (m *mockVenue) CancelOrder(orderID string) error {
	m.canceled = append(m.canceled, orderID)
	return nil
}

var testNow = time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Stocks: map[string]config.StockConfig{
			"AAPL": {Allocation: decimal.NewFromInt(1000), EntryTarget: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(90)},
			"MSFT": {Allocation: decimal.NewFromInt(2000), EntryTarget: decimal.NewFromInt(200), StopLoss: decimal.NewFromInt(180)},
		},
		Portfolio: config.PortfolioConfig{
			BaselineInvestment:   decimal.NewFromInt(10000),
			TrailingStopTrigger:  decimal.NewFromFloat(0.05),
			TrailingStopDistance: decimal.NewFromFloat(0.08),
		},
	}
}

func testManager(t *testing.T, venue *mockVenue) (*Manager, *storage.Store) {
	t.Helper()
	store := storage.NewStore(t.TempDir())
	m := New(testConfig(), venue, store)
	m.now = func() time.Time { return testNow }
	return m, store
}

func readOrderJournal(t *testing.T, store *storage.Store) []storage.OrderJournalEntry {
	t.Helper()
	name := "orders_" + testNow.Format("2006_01") + ".json"
	b, err := os.ReadFile(filepath.Join(store.Dir, "logs", name))
	if err != nil {
		t.Fatalf("reading order journal: %v", err)
	}
	var entries []storage.OrderJournalEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		t.Fatalf("parsing order journal: %v", err)
	}
	return entries
}

func TestPlaceInitialOrders(t *testing.T) {
	venue := &mockVenue{asks: map[string]float64{"AAPL": 110, "MSFT": 205}}
	m, store := testManager(t, venue)

	if err := m.PlaceInitialOrders(); err != nil {
		t.Fatalf("PlaceInitialOrders() error: %v", err)
	}

	if len(venue.marketOrders) != 2 {
		t.Fatalf("placed %d orders, want 2", len(venue.marketOrders))
	}
	// floor(1000/110) = 9
	aapl := venue.marketOrders[0]
	if aapl.Symbol != "AAPL" || aapl.Side != "buy" || !aapl.Qty.Equal(decimal.NewFromInt(9)) {
		t.Errorf("AAPL order = %+v", aapl)
	}
	// floor(2000/205) = 9
	msft := venue.marketOrders[1]
	if msft.Symbol != "MSFT" || !msft.Qty.Equal(decimal.NewFromInt(9)) {
		t.Errorf("MSFT order = %+v", msft)
	}

	entries := readOrderJournal(t, store)
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	if entries[0].OrderType != "initial_buy" || entries[0].TotalOrders != 2 {
		t.Errorf("journal entry = %+v", entries[0])
	}
}

func TestPlaceInitialOrders_ContinueOnError(t *testing.T) {
	venue := &mockVenue{
		asks:      map[string]float64{"AAPL": 110, "MSFT": 205},
		placeErrs: map[string]error{"AAPL": errors.New("insufficient buying power")},
	}
	m, store := testManager(t, venue)

	err := m.PlaceInitialOrders()
	if !errors.Is(err, engine.ErrVenueRejected) {
		t.Fatalf("error = %v, want ErrVenueRejected", err)
	}

	// The AAPL rejection must not stop the MSFT order.
	if len(venue.marketOrders) != 1 || venue.marketOrders[0].Symbol != "MSFT" {
		t.Errorf("placed orders = %+v", venue.marketOrders)
	}

	entries := readOrderJournal(t, store)
	if len(entries) != 1 || entries[0].TotalOrders != 1 {
		t.Errorf("journal must record only the successful order: %+v", entries)
	}
}

func TestPlaceStopLossOrders(t *testing.T) {
	venue := &mockVenue{}
	m, store := testManager(t, venue)

	book := &models.PortfolioBook{
		Positions: map[string]models.Position{
			"AAPL": {Symbol: "AAPL", Shares: decimal.NewFromInt(10)},
			"MSFT": {Symbol: "MSFT", Shares: decimal.NewFromFloat(9.7)},
		},
	}
	if err := store.SaveBook(book); err != nil {
		t.Fatal(err)
	}

	if err := m.PlaceStopLossOrders(); err != nil {
		t.Fatalf("PlaceStopLossOrders() error: %v", err)
	}

	if len(venue.stopOrders) != 2 {
		t.Fatalf("placed %d stops, want 2", len(venue.stopOrders))
	}
	aapl := venue.stopOrders[0]
	if !aapl.Qty.Equal(decimal.NewFromInt(10)) || !aapl.StopPrice.Equal(decimal.NewFromInt(90)) {
		t.Errorf("AAPL stop = %+v", aapl)
	}
	// Fractional book shares truncate to whole shares at the venue.
	msft := venue.stopOrders[1]
	if !msft.Qty.Equal(decimal.NewFromInt(9)) || !msft.StopPrice.Equal(decimal.NewFromInt(180)) {
		t.Errorf("MSFT stop = %+v", msft)
	}

	entries := readOrderJournal(t, store)
	if len(entries) != 1 || entries[0].OrderType != "stop_loss" {
		t.Errorf("journal entry = %+v", entries)
	}
	if entries[0].Orders[0].StopType != "fixed" {
		t.Errorf("stop type = %q, want fixed", entries[0].Orders[0].StopType)
	}
}

func TestPlaceStopLossOrders_NoBook(t *testing.T) {
	venue := &mockVenue{}
	m, _ := testManager(t, venue)

	if err := m.PlaceStopLossOrders(); err == nil {
		t.Fatal("expected an error without a position book")
	}
	if len(venue.stopOrders) != 0 {
		t.Errorf("placed stops without a book: %+v", venue.stopOrders)
	}
}

func TestEmergencyLiquidate(t *testing.T) {
	venue := &mockVenue{
		positions: []models.BrokerPosition{
			{Symbol: "AAPL", Qty: decimal.NewFromInt(9)},
		},
		openOrders: []models.Order{
			{ID: "stp-old", Symbol: "AAPL", Type: "stop", Side: "sell", Status: "new"},
		},
	}
	m, store := testManager(t, venue)

	if err := m.EmergencyLiquidate("AAPL"); err != nil {
		t.Fatalf("EmergencyLiquidate() error: %v", err)
	}

	if len(venue.canceled) != 1 || venue.canceled[0] != "stp-old" {
		t.Errorf("canceled = %v, want the resting stop", venue.canceled)
	}
	if len(venue.marketOrders) != 1 {
		t.Fatalf("market orders = %+v", venue.marketOrders)
	}
	sell := venue.marketOrders[0]
	if sell.Symbol != "AAPL" || sell.Side != "sell" || !sell.Qty.Equal(decimal.NewFromInt(9)) {
		t.Errorf("liquidation order = %+v", sell)
	}

	entries := readOrderJournal(t, store)
	if len(entries) != 1 || entries[0].OrderType != "emergency_liquidation" {
		t.Errorf("journal entry = %+v", entries)
	}
}

func TestEmergencyLiquidate_NoPosition(t *testing.T) {
	venue := &mockVenue{}
	m, _ := testManager(t, venue)

	if err := m.EmergencyLiquidate("AAPL"); err == nil {
		t.Fatal("expected an error when the venue holds nothing")
	}
	if len(venue.marketOrders) != 0 {
		t.Errorf("orders placed for an empty position: %+v", venue.marketOrders)
	}
}

func TestCheckOrderStatus_FiltersToWatchList(t *testing.T) {
	venue := &mockVenue{
		history: []models.Order{
			{Symbol: "AAPL", Side: "buy", Status: "filled", Qty: decimal.NewFromInt(9), FilledAvgPrice: decimal.NewFromFloat(110.5)},
			{Symbol: "GME", Side: "buy", Status: "filled", Qty: decimal.NewFromInt(1)},
			{Symbol: "MSFT", Side: "sell", Status: "new", Qty: decimal.NewFromInt(2)},
		},
	}
	m, _ := testManager(t, venue)

	recent, err := m.CheckOrderStatus()
	if err != nil {
		t.Fatalf("CheckOrderStatus() error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent orders = %d, want 2 (GME is not configured)", len(recent))
	}
	for _, o := range recent {
		if o.Symbol == "GME" {
			t.Error("unconfigured symbol leaked into the status list")
		}
	}
}
