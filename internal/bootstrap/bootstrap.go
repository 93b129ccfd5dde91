// Package bootstrap opens the configured store and assembles the attendance services.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/SherClockHolmes/webpush-go"

	"attendance-backend/config"
	"attendance-backend/internal/autocheckout"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/db"
	"attendance-backend/internal/hours"
	"attendance-backend/internal/leave"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/report"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

// App is the wired set of services shared by the daemon and the admin CLI.
type App struct {
	Config   *config.Config
	Store    store.Store
	Clock    clock.Clock
	Hours    *hours.Aggregator
	Timer    *timer.Service
	Presence *autocheckout.Service
	Leave    *leave.Ledger
	Reports  *report.Reporter
	// Notifications is nil when no VAPID keys are configured.
	Notifications *notification.WorkerPool
	WebPush       *webpush.Options

	closers []func()
}

// OpenStore connects to the configured database.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver == "mongo" {
		client, err := db.InitMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("mongodb disconnect: %v", err)
			}
		}
		st, err := store.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return st, disconnect, nil
	}

	gormDB, err := db.Init(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeSQL := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return store.NewGormStore(gormDB), closeSQL, nil
}

// New opens the store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config, clk clock.Clock) (*App, error) {
	st, closeStore, err := OpenStore(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app := &App{Config: cfg, Store: st, Clock: clk, closers: []func(){closeStore}}

	var notifier notification.Notifier
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		app.WebPush = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		app.Notifications = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, st, app.WebPush)
		notifier = app.Notifications
	} else {
		log.Println("VAPID keys are not configured; leave notifications are disabled")
	}

	app.Hours = hours.NewAggregator(st, &cfg.Attendance, clk)
	app.Timer = timer.NewService(st, app.Hours, clk)
	app.Presence = autocheckout.NewService(&cfg.Attendance, st, clk)
	app.Leave = leave.NewLedger(st, &cfg.Leave, notifier, clk)
	app.Reports = report.NewReporter(st, app.Hours, cfg.Attendance.SweepWorkers)
	return app, nil
}

// Close releases the store connection.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
