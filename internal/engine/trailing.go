package engine

import (
	"log"
	"sort"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/models"

	"github.com/shopspring/decimal"
)

// StopLevel is the effective protective stop for one symbol: the trailing
// stop price when armed, otherwise the static configured stop loss.
type StopLevel struct {
	Price    decimal.Decimal
	Trailing bool
}

// Gain returns (current - entry) / entry, or zero when entry is not positive.
func Gain(currentPrice, entryPrice decimal.Decimal) decimal.Decimal {
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return currentPrice.Sub(entryPrice).Div(entryPrice)
}

// EvaluateTrailingStop advances the per-symbol trailing-stop state machine by
// one step. It is a pure function of (current price, entry price, prior
// record, thresholds); the returned record is a fresh value, never an alias
// of prior. A nil result means the symbol has no record yet.
//
// Arming happens when the gain reaches the trigger. While armed, the highest
// price ratchets up with the market and the stop follows at the configured
// distance below it; the stop is never relaxed. Once armed, a record stays
// armed through pullbacks unless DeactivateOnPullback is set, in which case
// it is un-armed (history retained) and can re-arm later, restarting the
// high-water mark from the then-current price.
func EvaluateTrailingStop(prior *models.TrailingStopRecord, currentPrice, entryPrice decimal.Decimal, p config.PortfolioConfig, now time.Time) *models.TrailingStopRecord {
	triggered := Gain(currentPrice, entryPrice).GreaterThanOrEqual(p.TrailingStopTrigger)
	distanceMult := decimal.NewFromInt(1).Sub(p.TrailingStopDistance)

	if prior == nil || !prior.Active {
		if !triggered {
			return prior
		}
		return &models.TrailingStopRecord{
			ActivatedDate:    now,
			ActivationPrice:  currentPrice,
			HighestPrice:     currentPrice,
			CurrentStopPrice: currentPrice.Mul(distanceMult),
			Active:           true,
			LastUpdated:      now,
		}
	}

	if !triggered && p.DeactivateOnPullback {
		next := *prior
		next.Active = false
		next.LastUpdated = now
		return &next
	}

	if currentPrice.GreaterThan(prior.HighestPrice) {
		next := *prior
		next.HighestPrice = currentPrice
		candidate := currentPrice.Mul(distanceMult)
		if candidate.GreaterThan(next.CurrentStopPrice) {
			next.CurrentStopPrice = candidate
			next.LastUpdated = now
		}
		return &next
	}

	return prior
}

// EffectiveStop resolves the stop level used downstream for a symbol.
func EffectiveStop(rec *models.TrailingStopRecord, staticStop decimal.Decimal) StopLevel {
	if rec != nil && rec.Active {
		return StopLevel{Price: rec.CurrentStopPrice, Trailing: true}
	}
	return StopLevel{Price: staticStop}
}

// UpdateTrailingStops runs the state machine over every position in the
// desired book, persists the table and returns the effective stop per symbol
// for the stop-order synchronizer.
func (e *Engine) UpdateTrailingStops() (map[string]StopLevel, error) {
	book, err := e.store.LoadBook()
	if err != nil {
		return nil, asInconsistent(err)
	}
	table, err := e.store.LoadStops()
	if err != nil {
		return nil, asInconsistent(err)
	}

	now := e.now()
	levels := make(map[string]StopLevel, len(book.Positions))

	for _, symbol := range sortedPositionSymbols(book.Positions) {
		pos := book.Positions[symbol]
		prior := table[symbol]
		next := EvaluateTrailingStop(prior, pos.CurrentPrice, pos.EntryPrice, e.cfg.Portfolio, now)

		switch {
		case next != nil && (prior == nil || !prior.Active) && next.Active:
			log.Printf("[%s] ARMED trailing stop at $%s, initial stop $%s",
				symbol, next.ActivationPrice.StringFixed(2), next.CurrentStopPrice.StringFixed(2))
		case next != nil && prior != nil && prior.Active && !next.Active:
			log.Printf("[%s] Trailing stop deactivated on pullback, reverting to fixed stop", symbol)
		case next != nil && prior != nil && next.CurrentStopPrice.GreaterThan(prior.CurrentStopPrice):
			log.Printf("[%s] Trailing stop raised: $%s -> $%s (high $%s)",
				symbol, prior.CurrentStopPrice.StringFixed(2), next.CurrentStopPrice.StringFixed(2), next.HighestPrice.StringFixed(2))
		}

		if next != nil {
			table[symbol] = next
		}
		levels[symbol] = EffectiveStop(next, e.cfg.Stocks[symbol].StopLoss)
	}

	if err := e.store.SaveStops(table); err != nil {
		return nil, err
	}
	return levels, nil
}

// StopTrigger reports a position whose current price has reached its
// effective stop. Informational only: the actual selling is done by the
// venue's resting stop order.
type StopTrigger struct {
	Symbol       string
	CurrentPrice decimal.Decimal
	StopPrice    decimal.Decimal
	StopType     string // trailing_stop or fixed_stop
	Shares       decimal.Decimal
}

// CheckStopTriggers scans the book for positions trading at or below their
// effective stop.
func CheckStopTriggers(book *models.PortfolioBook, table models.TrailingStopTable, stocks map[string]config.StockConfig) []StopTrigger {
	var triggered []StopTrigger
	for _, symbol := range sortedPositionSymbols(book.Positions) {
		pos := book.Positions[symbol]
		level := EffectiveStop(table[symbol], stocks[symbol].StopLoss)
		if level.Price.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if pos.CurrentPrice.LessThanOrEqual(level.Price) {
			stopType := "fixed_stop"
			if level.Trailing {
				stopType = "trailing_stop"
			}
			triggered = append(triggered, StopTrigger{
				Symbol:       symbol,
				CurrentPrice: pos.CurrentPrice,
				StopPrice:    level.Price,
				StopType:     stopType,
				Shares:       pos.Shares,
			})
		}
	}
	return triggered
}

func sortedPositionSymbols(positions map[string]models.Position) []string {
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
