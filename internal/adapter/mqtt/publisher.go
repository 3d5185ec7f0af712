package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eclipse/paho.golang/paho"

	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// Publisher sends agent samples to the configured topic.
type Publisher struct {
	session *session
	topic   string
}

// NewPublisher connects to the broker.
func NewPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	s := newSession(cfg, logger, nil)
	if _, err := s.connect(ctx); err != nil {
		return nil, err
	}
	return &Publisher{session: s, topic: cfg.MQTTTopic}, nil
}

// Publish sends one sample at QoS 1, reconnecting first if the session dropped.
func (p *Publisher) Publish(ctx context.Context, data domain.AggregatedData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	client, err := p.session.current()
	if err != nil {
		if client, err = p.session.connect(ctx); err != nil {
			return err
		}
	}

	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   p.topic,
		QoS:     1,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// CheckReadiness reports whether the broker session is up.
func (p *Publisher) CheckReadiness(ctx context.Context) error {
	return p.session.CheckReadiness(ctx)
}

func (p *Publisher) Close(ctx context.Context) error {
	return p.session.close(ctx)
}
