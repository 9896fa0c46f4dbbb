package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/smcbot/config"
	"github.com/alejandrodnm/smcbot/internal/adapters/notify"
	"github.com/alejandrodnm/smcbot/internal/adapters/storage"
)

const (
	reportCycles = 20
	reportAlerts = 20
)

// runReport imprime el journal de SQLite sin arrancar el motor.
func runReport(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	cycles, err := store.RecentCycles(ctx, reportCycles)
	if err != nil {
		return fmt.Errorf("recent cycles: %w", err)
	}
	active, err := store.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("active orders: %w", err)
	}
	alerts, err := store.RecentAlerts(ctx, reportAlerts)
	if err != nil {
		return fmt.Errorf("recent alerts: %w", err)
	}

	notify.NewConsole(true).PrintReport(notify.ReportInput{
		Stats:        stats,
		Cycles:       cycles,
		ActiveOrders: active,
		Alerts:       alerts,
	})
	return nil
}
