package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// Subscriber receives agent samples and buffers them for the pipeline.
// It implements pipeline.BatchExtractor.
type Subscriber struct {
	session       *session
	topic         string
	messages      chan domain.RawEvent
	done          chan struct{}
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewSubscriber connects, subscribes to the configured topic and buffers up
// to bufferSize undelivered messages. A full buffer applies backpressure to
// the broker connection.
func NewSubscriber(ctx context.Context, cfg *config.Config, bufferSize int, logger *slog.Logger) (*Subscriber, error) {
	s := &Subscriber{
		topic:         cfg.MQTTTopic,
		messages:      make(chan domain.RawEvent, bufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.BatchFlushInterval,
		logger:        logger,
	}
	s.session = newSession(cfg, logger, s.receive)
	if err := s.subscribe(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	client, err := s.session.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.topic, QoS: 1}},
	}); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("mqtt subscribed", "topic", s.topic)
	return nil
}

// receive runs on the paho client goroutine and only enqueues.
func (s *Subscriber) receive(pr paho.PublishReceived) (bool, error) {
	raw := domain.RawEvent{
		Value:     pr.Packet.Payload,
		Topic:     pr.Packet.Topic,
		Timestamp: time.Now(),
	}
	select {
	case s.messages <- raw:
	case <-s.done:
	}
	return true, nil
}

// ExtractBatch waits for the first message, then drains until batchSize
// messages are collected or the flush interval elapses. A dropped session is
// re-established here so the pipeline's backoff paces reconnects.
func (s *Subscriber) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	if err := s.session.CheckReadiness(ctx); err != nil {
		if err := s.subscribe(ctx); err != nil {
			return nil, err
		}
	}

	var first domain.RawEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case first = <-s.messages:
	}

	batch := make([]domain.RawEvent, 0, batchSize)
	batch = append(batch, first)

	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	for len(batch) < batchSize {
		select {
		case raw := <-s.messages:
			batch = append(batch, raw)
		case <-timer.C:
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		}
	}
	return batch, nil
}

// CheckReadiness reports whether the broker session is up.
func (s *Subscriber) CheckReadiness(ctx context.Context) error {
	return s.session.CheckReadiness(ctx)
}

// Close disconnects and releases any callback blocked on a full buffer.
func (s *Subscriber) Close(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.session.close(ctx)
}
