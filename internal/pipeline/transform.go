package pipeline

import (
	"context"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// Classifier assigns a road state to the next sample of a session.
type Classifier interface {
	Classify(sessionID int, sample domain.Accelerometer) domain.RoadState
}

// ClassifyingTransformer decodes raw agent samples and classifies them. The
// session is keyed by the sample's user_id.
type ClassifyingTransformer struct {
	classifier Classifier
	metrics    *observability.Metrics
}

// NewClassifyingTransformer creates the edge-side transformer.
func NewClassifyingTransformer(c Classifier, metrics *observability.Metrics) *ClassifyingTransformer {
	return &ClassifyingTransformer{classifier: c, metrics: metrics}
}

func (t *ClassifyingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ProcessedAgentData, error) {
	data, err := domain.ParseAggregatedData(raw.Value)
	if err != nil {
		return domain.ProcessedAgentData{}, err
	}

	road := t.classifier.Classify(data.UserID, data.Accelerometer)
	out := domain.Classify(data, road)

	t.metrics.RoadStates.WithLabelValues(string(out.RoadState)).Inc()
	t.metrics.RainStates.WithLabelValues(string(out.RainState)).Inc()
	return out, nil
}

// DecodingTransformer decodes samples that were already classified upstream.
type DecodingTransformer struct{}

// NewDecodingTransformer creates the hub-side transformer.
func NewDecodingTransformer() *DecodingTransformer {
	return &DecodingTransformer{}
}

func (DecodingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ProcessedAgentData, error) {
	return domain.ParseProcessedAgentData(raw.Value)
}
