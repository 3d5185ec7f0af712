package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
// Each binary reads the subset it needs.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// MQTT transport between agent and edge.
	MQTTBrokerHost string
	MQTTBrokerPort int
	MQTTTopic      string
	MQTTClientID   string

	// Agent producer.
	AgentUserID  int
	AgentDelay   time.Duration
	AgentDataDir string

	// Kafka buffer inside the hub.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Relay targets and retry policy.
	HubURL           string
	StoreURL         string
	RelayTimeout     time.Duration
	RelayMaxAttempts int
	RelayQueueSize   int

	// Road-state classifier.
	WindowSize       int
	AnomalyThreshold float64
	MaxSessions      int

	// Store persistence.
	DatabasePath   string
	PersistWorkers int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	agentDelay, err := parsePositiveDuration("AGENT_DELAY", "1s")
	if err != nil {
		return nil, err
	}

	relayTimeout, err := parsePositiveDuration("RELAY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	threshold, err := parseThreshold()
	if err != nil {
		return nil, err
	}

	var (
		mqttPort, userID, windowSize, maxSessions int
		relayAttempts, relayQueue, persistWorkers int
	)
	for _, p := range []struct {
		key string
		def int
		min int
		dst *int
	}{
		{"MQTT_BROKER_PORT", 1883, 1, &mqttPort},
		{"AGENT_USER_ID", 1, 0, &userID},
		{"ROAD_WINDOW_SIZE", 5, 2, &windowSize},
		{"MAX_SESSIONS", 1000, 1, &maxSessions},
		{"RELAY_MAX_ATTEMPTS", 3, 1, &relayAttempts},
		{"RELAY_QUEUE_SIZE", 100, 1, &relayQueue},
		{"PERSIST_WORKERS", 4, 1, &persistWorkers},
	} {
		v, err := parseInt(p.key, p.def, p.min)
		if err != nil {
			return nil, err
		}
		*p.dst = v
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MQTTBrokerHost: sharedcfg.EnvOrDefault("MQTT_BROKER_HOST", "localhost"),
		MQTTBrokerPort: mqttPort,
		MQTTTopic:      sharedcfg.EnvOrDefault("MQTT_TOPIC", "agent_data_topic"),
		MQTTClientID:   os.Getenv("MQTT_CLIENT_ID"),

		AgentUserID:  userID,
		AgentDelay:   agentDelay,
		AgentDataDir: sharedcfg.EnvOrDefault("AGENT_DATA_DIR", "data"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "processed-agent-data"),
		KafkaGroupID: sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "road-telemetry-hub"),

		HubURL:           sharedcfg.EnvOrDefault("HUB_URL", "http://localhost:9000"),
		StoreURL:         sharedcfg.EnvOrDefault("STORE_URL", "http://localhost:8000"),
		RelayTimeout:     relayTimeout,
		RelayMaxAttempts: relayAttempts,
		RelayQueueSize:   relayQueue,

		WindowSize:       windowSize,
		AnomalyThreshold: threshold,
		MaxSessions:      maxSessions,

		DatabasePath:   sharedcfg.EnvOrDefault("DATABASE_PATH", "road_telemetry.db"),
		PersistWorkers: persistWorkers,
	}

	if cfg.MQTTTopic == "" {
		return nil, errors.New("MQTT_TOPIC is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minValue {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minValue)
	}
	return n, nil
}

func parseThreshold() (float64, error) {
	s := sharedcfg.EnvOrDefault("ROAD_ANOMALY_THRESHOLD", "0.01")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("invalid ROAD_ANOMALY_THRESHOLD")
	}
	return v, nil
}
