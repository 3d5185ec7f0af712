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
	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/edge"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
	"github.com/couchcryptid/road-telemetry-service/internal/pipeline"
	"github.com/couchcryptid/road-telemetry-service/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, "edge")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The inbound buffer holds a few batches so the broker callback rarely blocks.
	subscriber, err := mqtt.NewSubscriber(ctx, cfg, 4*cfg.BatchSize, logger)
	if err != nil {
		logger.Error("failed to subscribe to mqtt broker", "error", err)
		os.Exit(1)
	}

	sessions := edge.NewSessions(cfg.WindowSize, cfg.AnomalyThreshold, cfg.MaxSessions)
	sessions.OnResize(func(n int) { metrics.ActiveSessions.Set(float64(n)) })

	client := relay.NewClient(cfg.HubURL, cfg.RelayTimeout, logger, metrics)
	queue := relay.NewQueue(client, cfg.RelayQueueSize, cfg.RelayMaxAttempts, logger, metrics)
	transformer := pipeline.NewClassifyingTransformer(sessions, metrics)

	p := pipeline.New(subscriber, transformer, queue, logger, metrics, cfg.BatchSize)
	srv := httpadapter.NewServer(cfg.HTTPAddr, subscriber, logger)

	logger.Info("edge classifier configured",
		"window_size", cfg.WindowSize,
		"threshold", cfg.AnomalyThreshold,
		"max_sessions", cfg.MaxSessions,
		"hub_url", cfg.HubURL,
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
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
	if err := subscriber.Close(shutdownCtx); err != nil {
		logger.Error("mqtt subscriber close error", "error", err)
	}
	// Drain whatever the pipeline already handed to the relay.
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Error("relay queue close error", "error", err)
	}

	logger.Info("shutdown complete")
}
