package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/road-telemetry-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/road-telemetry-service/internal/adapter/ws"
	"github.com/couchcryptid/road-telemetry-service/internal/broadcast"
	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
	"github.com/couchcryptid/road-telemetry-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, "store")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	registry := broadcast.NewRegistry(metrics)
	ingestor := broadcast.NewIngestor(st, registry, cfg.PersistWorkers, logger, metrics)
	routes := httpadapter.NewStoreRoutes(ingestor, st, ws.NewHandler(registry, logger), logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, st, logger, routes)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
