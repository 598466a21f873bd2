package engine

import (
	"errors"
	"fmt"

	"stockpilot/internal/storage"
)

// Standard engine-level errors. Stages wrap underlying failures with one of
// these so the run loop can decide per kind whether to continue or abort.
var (
	// ErrDataUnavailable: a price, position or order-history fetch failed
	// after retries. The current stage aborts; persisted state is untouched
	// because writes only happen after successful computation.
	ErrDataUnavailable = errors.New("market data or venue state unavailable")

	// ErrVenueRejected: one or more order submissions or cancellations
	// failed. Reported per symbol; never aborts the remaining symbols.
	ErrVenueRejected = errors.New("venue rejected order operation")

	// ErrInconsistentState: a persisted document is missing or malformed.
	// The stage treats this as nothing to do and the run continues.
	ErrInconsistentState = errors.New("persisted state missing or malformed")
)

// asInconsistent maps storage-level document problems onto the engine
// taxonomy, leaving genuine I/O errors untouched.
func asInconsistent(err error) error {
	if errors.Is(err, storage.ErrNoDocument) || errors.Is(err, storage.ErrMalformedDocument) {
		return fmt.Errorf("%w: %v", ErrInconsistentState, err)
	}
	return err
}
