package app

import (
	"context"
	"errors"
	"time"

	"dealwatch/internal/storage"
)

// Cleanup expires stale deals and removes data past the retention window.
// The same work runs nightly inside the service; this entry point exists for
// manual runs.
func (a *App) Cleanup(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot clean up")
	}
	defer closeStore()

	return a.cleanupOnce(ctx, store)
}

func (a *App) cleanupOnce(ctx context.Context, store *storage.Store) error {
	now := time.Now().UTC()

	expired, err := store.ExpireDeals(ctx, now)
	if err != nil {
		return err
	}

	cutoff := now.AddDate(0, 0, -a.Config.Cleanup.RetentionDays)
	if err := store.CleanupOldData(ctx, cutoff); err != nil {
		return err
	}

	a.Logger.Info().
		Int64("deals_expired", expired).
		Time("cutoff", cutoff).
		Msg("cleanup complete")

	return store.LogActivity(ctx, "cleanup", "retention cleanup completed", map[string]any{
		"deals_expired": expired,
		"cutoff":        cutoff.Format(time.RFC3339),
	})
}
