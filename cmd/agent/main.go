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
	"github.com/couchcryptid/road-telemetry-service/internal/adapter/mqtt"
	"github.com/couchcryptid/road-telemetry-service/internal/agent"
	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, "agent")
	metrics := observability.NewMetrics()

	source, err := agent.LoadFiles(os.DirFS(cfg.AgentDataDir), cfg.AgentUserID)
	if err != nil {
		logger.Error("failed to load sensor data", "dir", cfg.AgentDataDir, "error", err)
		os.Exit(1)
	}
	logger.Info("sensor data loaded", "dir", cfg.AgentDataDir, "rows", source.Len(), "user_id", cfg.AgentUserID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := mqtt.NewPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to mqtt broker", "error", err)
		os.Exit(1)
	}

	a := agent.New(source, publisher, cfg.AgentDelay, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, publisher, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Publish until interrupted.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Run(ctx); err != nil {
			logger.Error("agent error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	<-done
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Error("mqtt publisher close error", "error", err)
	}

	logger.Info("shutdown complete")
}
