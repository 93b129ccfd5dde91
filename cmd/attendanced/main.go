package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jub0bs/fcors"

	"attendance-backend/config"
	"attendance-backend/internal/api"
	"attendance-backend/internal/auth"
	"attendance-backend/internal/bootstrap"
	"attendance-backend/internal/clock"
)

func main() {
	logger := log.New(os.Stdout, "attendance-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s (driver %s, utc offset %s)",
		configPath, cfg.Database.Driver, cfg.Attendance.UTCOffset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, clock.System{})
	if err != nil {
		logger.Fatalf("failed to initialize services: %v", err)
	}
	defer app.Close()
	logger.Println("data store initialized")

	if app.Notifications != nil {
		app.Notifications.Start(ctx)
	}
	go app.Presence.Run(ctx)

	var users auth.UserLookup
	if cfg.Auth.VerifyUser {
		users = app.Store
	}
	provider, err := auth.NewProvider(&cfg.Auth, users)
	if err != nil {
		logger.Fatalf("failed to initialize auth: %v", err)
	}

	handler := api.NewHandler(api.Services{
		Timer:    app.Timer,
		Presence: app.Presence,
		Leave:    app.Leave,
		Reports:  app.Reports,
		Subs:     app.Store,
		Location: cfg.Attendance.Location,
	}, app.WebPush)
	router := api.NewRouter(handler, provider, &cfg.Server)

	cors, err := newCORS(cfg.Server.CORSOrigins)
	if err != nil {
		logger.Fatalf("invalid CORS configuration: %v", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: cors(router),
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

func newCORS(origins []string) (fcors.Middleware, error) {
	methods := fcors.WithMethods(
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
	)
	headers := fcors.WithRequestHeaders("Authorization", "Content-Type")
	if len(origins) == 0 {
		return fcors.AllowAccess(fcors.FromAnyOrigin(), methods, headers)
	}
	return fcors.AllowAccess(fcors.FromOrigins(origins[0], origins[1:]...), methods, headers)
}
