package market

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

const priceFetchAttempts = 3

// retryDelays escalates between attempts: short wait after a soft miss,
// longer after a hard error.
var (
	softRetryDelay = 1 * time.Second
	hardRetryDelay = 2 * time.Second
)

// FetchPrice returns the best available price for a symbol: the latest ask
// from the quote feed, falling back to the latest daily bar close when the
// quote is missing or zero (common outside market hours). Fetches are wrapped
// in a bounded retry; order mutations never are.
func FetchPrice(p Provider, symbol string) (decimal.Decimal, error) {
	var lastErr error

	for attempt := 1; attempt <= priceFetchAttempts; attempt++ {
		quote, err := p.GetQuote(symbol)
		if err == nil && quote != nil && quote.AskPrice.GreaterThan(decimal.Zero) {
			return quote.AskPrice, nil
		}
		if err != nil {
			lastErr = err
		}

		bar, err := p.GetLatestBar(symbol)
		if err == nil && bar != nil && bar.Close.GreaterThan(decimal.Zero) {
			return bar.Close, nil
		}
		if err != nil {
			lastErr = err
		}

		if attempt < priceFetchAttempts {
			delay := softRetryDelay
			if lastErr != nil {
				delay = hardRetryDelay
			}
			log.Printf("No valid price for %s on attempt %d, retrying in %s", symbol, attempt, delay)
			time.Sleep(delay)
		}
	}

	if lastErr != nil {
		return decimal.Zero, fmt.Errorf("fetching price for %s after %d attempts: %w", symbol, priceFetchAttempts, lastErr)
	}
	return decimal.Zero, fmt.Errorf("no valid price data for %s after %d attempts", symbol, priceFetchAttempts)
}
