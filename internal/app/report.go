package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"dealwatch/internal/storage"
	"dealwatch/internal/transport"
)

// Report prints a status summary and, when the transport is configured,
// sends it to the admin chat.
func (a *App) Report(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot report")
	}
	defer closeStore()

	tg, err := a.newTelegram()
	if err != nil {
		return err
	}

	if err := a.sendReport(ctx, store, tg); err != nil {
		return err
	}
	return nil
}

func (a *App) sendReport(ctx context.Context, store *storage.Store, tg *transport.Telegram) error {
	stats, err := store.CountStats(ctx)
	if err != nil {
		return err
	}

	text := formatReport(stats, time.Now().UTC())
	fmt.Fprintln(os.Stdout, text)

	if tg != nil && a.Config.Telegram.AdminChatID != 0 {
		if err := tg.SendText(ctx, a.Config.Telegram.AdminChatID, text); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
	}
	return nil
}

func formatReport(stats storage.Stats, now time.Time) string {
	return fmt.Sprintf(
		"📊 *Daily Report* (%s)\n\n"+
			"Products tracked: %d\n"+
			"Active deals: %d\n"+
			"Messages sent today: %d\n"+
			"Failed deliveries today: %d\n"+
			"Active destinations: %d",
		now.Format("2006-01-02"),
		stats.ProductsTotal,
		stats.ActiveDeals,
		stats.MessagesToday,
		stats.FailuresToday,
		stats.DestinationsOn,
	)
}
