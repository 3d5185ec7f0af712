package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// wireAggregatedData mirrors AggregatedData with pointers so that absent
// required fields can be told apart from zero values.
type wireAggregatedData struct {
	Accelerometer *Accelerometer `json:"accelerometer"`
	GPS           *GPS           `json:"gps"`
	Parking       *Parking       `json:"parking"`
	Rain          *Rain          `json:"rain"`
	Temperature   *float64       `json:"temperature"`
	Timestamp     *Timestamp     `json:"timestamp"`
	UserID        *int           `json:"user_id"`
}

// ParseAggregatedData decodes one agent sample. The accelerometer, timestamp
// and user_id fields are required; gps, rain and temperature default to zero.
func ParseAggregatedData(data []byte) (AggregatedData, error) {
	var w wireAggregatedData
	if err := json.Unmarshal(data, &w); err != nil {
		return AggregatedData{}, fmt.Errorf("parse agent data: %w", err)
	}
	if err := w.validate(); err != nil {
		return AggregatedData{}, fmt.Errorf("parse agent data: %w", err)
	}

	out := AggregatedData{
		Accelerometer: *w.Accelerometer,
		Parking:       w.Parking,
		Timestamp:     *w.Timestamp,
		UserID:        *w.UserID,
	}
	if w.GPS != nil {
		out.GPS = *w.GPS
	}
	if w.Rain != nil {
		out.Rain = *w.Rain
	}
	if w.Temperature != nil {
		out.Temperature = *w.Temperature
	}
	return out, nil
}

func (w *wireAggregatedData) validate() error {
	var errs []error
	if w.Accelerometer == nil {
		errs = append(errs, errors.New("missing accelerometer"))
	}
	if w.Timestamp == nil {
		errs = append(errs, errors.New("missing timestamp"))
	}
	if w.UserID == nil {
		errs = append(errs, errors.New("missing user_id"))
	}
	return errors.Join(errs...)
}

// ParseProcessedAgentData decodes one classified sample and checks that the
// embedded agent data is complete.
func ParseProcessedAgentData(data []byte) (ProcessedAgentData, error) {
	var w struct {
		RoadState RoadState       `json:"road_state"`
		RainState RainState       `json:"rain_state"`
		AgentData json.RawMessage `json:"agent_data"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return ProcessedAgentData{}, fmt.Errorf("parse processed data: %w", err)
	}
	if w.RoadState == "" || w.RainState == "" {
		return ProcessedAgentData{}, errors.New("parse processed data: missing road_state or rain_state")
	}
	if len(w.AgentData) == 0 {
		return ProcessedAgentData{}, errors.New("parse processed data: missing agent_data")
	}
	agent, err := ParseAggregatedData(w.AgentData)
	if err != nil {
		return ProcessedAgentData{}, err
	}
	return ProcessedAgentData{RoadState: w.RoadState, RainState: w.RainState, AgentData: agent}, nil
}

// ParseProcessedBatch decodes a JSON array of classified samples. Any invalid
// element rejects the whole batch.
func ParseProcessedBatch(data []byte) ([]ProcessedAgentData, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	batch := make([]ProcessedAgentData, 0, len(raws))
	for i, raw := range raws {
		p, err := ParseProcessedAgentData(raw)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", i, err)
		}
		batch = append(batch, p)
	}
	return batch, nil
}

// Classify produces the processed form of a sample given the road state the
// sample's session window yielded.
func Classify(data AggregatedData, road RoadState) ProcessedAgentData {
	return ProcessedAgentData{
		RoadState: road,
		RainState: BucketRain(data.Rain.Intensity),
		AgentData: data,
	}
}
