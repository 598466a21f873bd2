package engine

import (
	"errors"
	"testing"

	"stockpilot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	desired := map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(10),
		"MSFT": decimal.NewFromInt(5),
		"NVDA": decimal.NewFromFloat(7.6), // fractional config artifact, rounds to 8
	}
	actual := map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(7),
		"MSFT": decimal.NewFromInt(5),
		"NVDA": decimal.NewFromInt(9),
		"TSLA": decimal.NewFromInt(3), // venue-only symbol, ignored
	}

	deltas := Reconcile(desired, actual)
	require.Len(t, deltas, 3, "one delta per desired symbol, venue-only symbols ignored")

	bysym := map[string]models.ReconciliationDelta{}
	for _, d := range deltas {
		bysym[d.Symbol] = d
	}

	assert.Equal(t, int64(3), bysym["AAPL"].Delta, "buy 3 to close 10 vs 7")
	assert.Equal(t, int64(0), bysym["MSFT"].Delta)
	assert.Equal(t, int64(-1), bysym["NVDA"].Delta, "sell 1 to close round(7.6)=8 vs 9")

	// Sorted output for deterministic order submission.
	assert.Equal(t, "AAPL", deltas[0].Symbol)
	assert.Equal(t, "MSFT", deltas[1].Symbol)
	assert.Equal(t, "NVDA", deltas[2].Symbol)
}

func TestReconcile_Idempotent(t *testing.T) {
	desired := map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(10)}
	actual := map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(7)}

	first := Reconcile(desired, actual)
	require.Len(t, first, 1)
	require.Equal(t, int64(3), first[0].Delta)

	// Apply the delta: venue now matches the book, so a second pass with the
	// same inputs produces nothing to order.
	actual["AAPL"] = decimal.NewFromInt(actual["AAPL"].IntPart() + first[0].Delta)
	second := Reconcile(desired, actual)
	require.Len(t, second, 1)
	assert.Equal(t, int64(0), second[0].Delta)
}

func TestSyncPositions_PlacesOrders(t *testing.T) {
	provider := &mockProvider{
		positions: []models.BrokerPosition{
			{Symbol: "AAPL", Qty: decimal.NewFromInt(7)},
			{Symbol: "MSFT", Qty: decimal.NewFromInt(12)},
		},
	}
	e, store := testEngine(t, provider)
	require.NoError(t, store.SaveBook(testBook())) // wants 10 AAPL, 10 MSFT

	require.NoError(t, e.SyncPositions())

	require.Len(t, provider.placedMarket, 2)
	assert.Equal(t, placedMarketOrder{Symbol: "AAPL", Qty: decimal.NewFromInt(3), Side: "buy"}, provider.placedMarket[0])
	assert.Equal(t, "MSFT", provider.placedMarket[1].Symbol)
	assert.Equal(t, "sell", provider.placedMarket[1].Side)
	assert.True(t, provider.placedMarket[1].Qty.Equal(decimal.NewFromInt(2)))
}

func TestSyncPositions_ContinueOnError(t *testing.T) {
	provider := &mockProvider{
		positions: []models.BrokerPosition{}, // venue holds nothing
		placeErrs: map[string]error{"AAPL": errors.New("insufficient buying power")},
	}
	e, store := testEngine(t, provider)
	require.NoError(t, store.SaveBook(testBook()))

	err := e.SyncPositions()
	require.ErrorIs(t, err, ErrVenueRejected)

	// The AAPL failure must not stop the MSFT order.
	require.Len(t, provider.placedMarket, 1)
	assert.Equal(t, "MSFT", provider.placedMarket[0].Symbol)
}

func TestSyncPositions_MissingBook(t *testing.T) {
	provider := &mockProvider{}
	e, _ := testEngine(t, provider)
	assert.ErrorIs(t, e.SyncPositions(), ErrInconsistentState)
	assert.Empty(t, provider.placedMarket)
}

func TestSyncPositions_VenueMatches(t *testing.T) {
	provider := &mockProvider{
		positions: []models.BrokerPosition{
			{Symbol: "AAPL", Qty: decimal.NewFromInt(10)},
			{Symbol: "MSFT", Qty: decimal.NewFromInt(10)},
		},
	}
	e, store := testEngine(t, provider)
	require.NoError(t, store.SaveBook(testBook()))

	require.NoError(t, e.SyncPositions())
	assert.Empty(t, provider.placedMarket, "matching books must produce no orders")
}
