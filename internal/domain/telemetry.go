package domain

import (
	"context"
	"time"
)

// Accelerometer is one raw accelerometer reading in sensor counts.
type Accelerometer struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// GPS is a WGS-84 latitude/longitude pair.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Parking reports free spaces at a lot near the vehicle.
type Parking struct {
	EmptyCount int `json:"empty_count"`
	GPS        GPS `json:"gps"`
}

// Rain holds a rain-intensity reading, nominally in [0, 1].
type Rain struct {
	Intensity float64 `json:"intensity"`
}

// AggregatedData is everything the agent observed during one tick.
type AggregatedData struct {
	Accelerometer Accelerometer `json:"accelerometer"`
	GPS           GPS           `json:"gps"`
	Parking       *Parking      `json:"parking,omitempty"`
	Rain          Rain          `json:"rain"`
	Temperature   float64       `json:"temperature"`
	Timestamp     Timestamp     `json:"timestamp"`
	UserID        int           `json:"user_id"`
}

// ProcessedAgentData is an agent sample after edge classification.
type ProcessedAgentData struct {
	RoadState RoadState      `json:"road_state"`
	RainState RainState      `json:"rain_state"`
	AgentData AggregatedData `json:"agent_data"`
}

// StoredRecord is the flattened, persisted form of a ProcessedAgentData.
type StoredRecord struct {
	ID            int64     `json:"id"`
	RoadState     RoadState `json:"road_state"`
	RainState     RainState `json:"rain_state"`
	UserID        int       `json:"user_id"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	Z             float64   `json:"z"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	RainIntensity float64   `json:"rain_intensity"`
	Temperature   float64   `json:"temperature"`
	Timestamp     Timestamp `json:"timestamp"`
}

// Flatten converts a processed sample into its persisted row shape. The ID is
// left zero for the store to assign.
func Flatten(p ProcessedAgentData) StoredRecord {
	a := p.AgentData
	return StoredRecord{
		RoadState:     p.RoadState,
		RainState:     p.RainState,
		UserID:        a.UserID,
		X:             float64(a.Accelerometer.X),
		Y:             float64(a.Accelerometer.Y),
		Z:             float64(a.Accelerometer.Z),
		Latitude:      a.GPS.Latitude,
		Longitude:     a.GPS.Longitude,
		RainIntensity: a.Rain.Intensity,
		Temperature:   a.Temperature,
		Timestamp:     a.Timestamp,
	}
}

// RawEvent is an undecoded message taken off a transport (MQTT or Kafka).
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
