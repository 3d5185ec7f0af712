package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "road_telemetry"

// Metrics holds the Prometheus counters, histograms, and gauges shared by the
// agent, edge, hub and store binaries. Each binary only moves the series that
// belong to its stage.
type Metrics struct {
	// Agent producer.
	SamplesPublished prometheus.Counter
	PublishErrors    prometheus.Counter

	// Pipeline loop (edge and hub).
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Classification.
	RoadStates     *prometheus.CounterVec // labels: state
	RainStates     *prometheus.CounterVec // labels: state
	ActiveSessions prometheus.Gauge

	// Relay.
	RelayRequests   *prometheus.CounterVec // labels: outcome={success,failure}
	RelayDuration   prometheus.Histogram
	RelayQueueDepth prometheus.Gauge
	DeadLettered    prometheus.Counter

	// Store.
	RecordsPersisted    prometheus.Counter
	PersistErrors       prometheus.Counter
	Subscribers         prometheus.Gauge
	BroadcastDeliveries *prometheus.CounterVec // labels: outcome={delivered,failed}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SamplesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_published_total",
			Help:      "Total agent samples published to the broker.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total agent samples that failed to publish.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source transport.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total records handed to the relay.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total malformed messages dropped.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per extracted batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RoadStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "road_states_total",
			Help:      "Classified samples by road state.",
		}, []string{"state"}),
		RainStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rain_states_total",
			Help:      "Classified samples by rain state.",
		}, []string{"state"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently holding a classifier window.",
		}),
		RelayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Relay POST attempts by outcome.",
		}, []string{"outcome"}),
		RelayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Relay POST duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RelayQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_queue_depth",
			Help:      "Batches waiting in the relay queue.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_batches_total",
			Help:      "Batches dropped after exhausting relay attempts or queue space.",
		}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Total records written to the store.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Total record writes that failed.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live subscription channels.",
		}),
		BroadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Record pushes to subscription channels by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesPublished,
		m.PublishErrors,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.RoadStates,
		m.RainStates,
		m.ActiveSessions,
		m.RelayRequests,
		m.RelayDuration,
		m.RelayQueueDepth,
		m.DeadLettered,
		m.RecordsPersisted,
		m.PersistErrors,
		m.Subscribers,
		m.BroadcastDeliveries,
	}
}
