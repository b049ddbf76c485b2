package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Scan runs a single discovery cycle immediately and prints its metrics.
// With broadcasting off the cycle still stores products, prices, and deals.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot scan")
	}
	defer closeStore()

	seen := a.openSeenCache(ctx)

	tg, err := a.newTelegram()
	if err != nil {
		return err
	}
	if !opts.Broadcast {
		tg = nil
	}

	eng := a.newEngine(store, seen, a.newBroadcaster(tg, store))

	metrics, err := eng.RunCycle(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout,
		"cycle finished in %s\nproducts scraped: %d\ndeals found: %d\nmessages sent: %d\nmessages failed: %d\nerrors: %d\n",
		metrics.Duration.Round(0),
		metrics.ProductsScraped,
		metrics.DealsFound,
		metrics.MessagesSent,
		metrics.MessagesFailed,
		metrics.Errors,
	)
	return nil
}
