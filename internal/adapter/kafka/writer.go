package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/road-telemetry-service/internal/config"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// Writer produces classified samples to the hub's buffer topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer  *kafkago.Writer
	brokers []string
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic. Messages are
// keyed by user_id so one user's samples stay on one partition, in order.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, brokers: cfg.KafkaBrokers, logger: logger}
}

// LoadBatch publishes the batch in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, batch []domain.ProcessedAgentData) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch))
	for i := range batch {
		msg, err := serializeToMessage(batch[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	w.logger.Debug("batch buffered", "topic", w.writer.Topic, "batch_size", len(msgs))
	return nil
}

// CheckReadiness dials a broker to confirm the buffer is reachable.
func (w *Writer) CheckReadiness(ctx context.Context) error {
	var lastErr error
	for _, broker := range w.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(p domain.ProcessedAgentData) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize processed data: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(p.AgentData.UserID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "road_state", Value: []byte(p.RoadState)},
			{Key: "rain_state", Value: []byte(p.RainState)},
		},
	}, nil
}
