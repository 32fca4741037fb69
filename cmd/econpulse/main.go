package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqliteadapter "github.com/econpulse/econpulse/internal/adapter/driven/sqlite"
	httphandler "github.com/econpulse/econpulse/internal/adapter/driving/http"
	wshandler "github.com/econpulse/econpulse/internal/adapter/driving/ws"
	"github.com/econpulse/econpulse/internal/application"
	"github.com/econpulse/econpulse/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"detect_interval", cfg.DetectInterval,
		"heartbeat_interval", cfg.HeartbeatInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	keyStore := sqliteadapter.NewKeyRepo(db)
	quotaStore := sqliteadapter.NewQuotaRepo(db)
	releaseStore := sqliteadapter.NewReleaseRepo(db)

	// 6. Application services.
	keySvc := application.NewKeyService(keyStore, cfg.DefaultRateLimit, int(cfg.DefaultRateWindow.Seconds()))

	hub := wshandler.NewHub(cfg.HeartbeatInterval, slog.Default())

	detectSvc := application.NewDetectService(releaseStore, hub, cfg.DetectInterval, cfg.DetectLookback, cfg.StateRetention)
	go detectSvc.Start(ctx)

	sweepSvc := application.NewSweepService(quotaStore, cfg.SweepInterval, cfg.QuotaRetention)
	go sweepSvc.Start(ctx)

	go hub.StartHeartbeat(ctx)

	// 7. HTTP handler with REST and websocket routes.
	apiHandler := httphandler.NewHandler(keySvc, keyStore, quotaStore, releaseStore, hub, cfg.InternalKey, slog.Default())
	wsHTTP := wshandler.NewHandler(hub, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, wsHTTP, slog.Default())

	// No Read/WriteTimeout: both would sever long-lived websocket
	// connections. Liveness is handled by the hub's heartbeat instead.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("econpulse started",
		"listen_addr", cfg.ListenAddr,
		"detect_interval", cfg.DetectInterval,
		"sweep_interval", cfg.SweepInterval,
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with 10s timeout; close live websocket
	// connections first so the server can drain.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
