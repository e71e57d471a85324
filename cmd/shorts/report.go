package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/adapters/notify"
	"github.com/alejandrodnm/shortsbot/internal/adapters/storage"
)

// runReport imprime el reporte del journal.
func runReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console) error {
	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("main.runReport: %w", err)
	}
	dailies, err := store.GetDailies(ctx)
	if err != nil {
		return fmt.Errorf("main.runReport: %w", err)
	}
	recent, err := store.GetSettlements(ctx, time.Time{}, time.Now())
	if err != nil {
		return fmt.Errorf("main.runReport: %w", err)
	}
	console.PrintReport(stats, dailies, recent)
	return nil
}
