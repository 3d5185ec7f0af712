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
	kafkaadapter "github.com/couchcryptid/road-telemetry-service/internal/adapter/kafka"
	"github.com/couchcryptid/road-telemetry-service/internal/config"
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

	logger := observability.NewLogger(cfg, "hub")
	metrics := observability.NewMetrics()

	// Ingress: HTTP batches go straight into the Kafka buffer.
	writer := kafkaadapter.NewWriter(cfg, logger)

	// Egress: the buffer is drained in batches and relayed to the store.
	reader := kafkaadapter.NewReader(cfg, logger)
	client := relay.NewClient(cfg.StoreURL, cfg.RelayTimeout, logger, metrics)
	queue := relay.NewQueue(client, cfg.RelayQueueSize, cfg.RelayMaxAttempts, logger, metrics)

	p := pipeline.New(reader, pipeline.NewDecodingTransformer(), queue, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, writer, logger, httpadapter.NewHubRoutes(writer, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	<-done
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Error("relay queue close error", "error", err)
	}

	logger.Info("shutdown complete")
}
