package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// Publisher delivers one sample to the edge.
type Publisher interface {
	Publish(ctx context.Context, data domain.AggregatedData) error
}

// Source yields the next sample.
type Source interface {
	Read() domain.AggregatedData
}

// Agent publishes one sample per tick until its context ends. A failed
// publish is logged and counted; the next tick carries on.
type Agent struct {
	source    Source
	publisher Publisher
	delay     time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func New(source Source, publisher Publisher, delay time.Duration, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Agent {
	a := &Agent{
		source:    source,
		publisher: publisher,
		delay:     delay,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started", "delay", a.delay)
	ticker := a.clock.NewTicker(a.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			a.publish(ctx)
		}
	}
}

func (a *Agent) publish(ctx context.Context) {
	data := a.source.Read()
	if err := a.publisher.Publish(ctx, data); err != nil {
		if ctx.Err() != nil {
			return
		}
		a.metrics.PublishErrors.Inc()
		a.logger.Warn("publish failed", "error", err, "user_id", data.UserID)
		return
	}
	a.metrics.SamplesPublished.Inc()
	a.logger.Debug("sample published", "user_id", data.UserID, "z", data.Accelerometer.Z)
}
