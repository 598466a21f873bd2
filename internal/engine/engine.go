// Package engine implements the risk and reconciliation core: detecting and
// backfilling executed protective stops, reconciling the desired position
// book against the venue, advancing the trailing-stop state machine and
// keeping one protective sell-stop resting per holding.
package engine

import (
	"errors"
	"fmt"
	"log"
	"time"

	"stockpilot/internal/config"
	"stockpilot/internal/market"
	"stockpilot/internal/storage"
)

// Engine runs the per-invocation risk and reconciliation cycle. Single
// writer, run-to-completion; mutual exclusion across invocations is the
// external scheduler's responsibility.
type Engine struct {
	cfg      *config.Config
	provider market.Provider
	store    *storage.Store
	now      func() time.Time
}

func New(cfg *config.Config, provider market.Provider, store *storage.Store) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: provider,
		store:    store,
		now:      time.Now,
	}
}

// Run executes one full cycle:
//
//	connectivity probe -> detect executed stops -> backfill ->
//	reconcile positions -> update trailing stops -> sync stop orders
//
// Total venue unreachability at the start aborts the whole run. Missing or
// malformed persisted state skips the affected stage. Per-symbol venue
// rejections are logged and never stop the remaining work. Order mutations
// are fire-once: nothing in this cycle retries a submit or cancel.
func (e *Engine) Run() error {
	acct, err := e.provider.GetAccount()
	if err != nil {
		return fmt.Errorf("%w: venue unreachable: %v", ErrDataUnavailable, err)
	}
	log.Printf("Connected to venue, account equity: $%s", acct.Equity.StringFixed(2))

	events, err := e.DetectExecutedStops()
	switch {
	case errors.Is(err, ErrInconsistentState):
		log.Printf("Execution detection skipped: %v", err)
	case err != nil:
		// Acting on stale order history risks re-buying a stopped-out
		// symbol, so an unreadable history aborts before reconciliation.
		return err
	case len(events) > 0:
		if err := e.Backfill(events); err != nil {
			return err
		}
	}

	if err := e.SyncPositions(); err != nil {
		switch {
		case errors.Is(err, ErrInconsistentState):
			log.Printf("Position reconciliation skipped: %v", err)
		case errors.Is(err, ErrVenueRejected):
			log.Printf("Position reconciliation partial failure: %v", err)
		default:
			return err
		}
	}

	levels, err := e.UpdateTrailingStops()
	if err != nil {
		if !errors.Is(err, ErrInconsistentState) {
			return err
		}
		// No book, no trailing state to advance; stop sync below still
		// protects live holdings with the static configured stops.
		log.Printf("Trailing stop update skipped: %v", err)
	}

	if err := e.SyncStopOrders(levels); err != nil {
		if !errors.Is(err, ErrVenueRejected) {
			return err
		}
		log.Printf("Stop order sync partial failure: %v", err)
	}

	log.Println("Risk and reconciliation cycle completed")
	return nil
}
