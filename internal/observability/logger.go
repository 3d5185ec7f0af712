package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/road-telemetry-service/internal/config"
)

// NewLogger builds the process logger for one pipeline stage from LOG_LEVEL
// and LOG_FORMAT and installs it as the slog default. Every record carries
// the stage name so the agent, edge, hub and store logs can share a sink.
func NewLogger(cfg *config.Config, stage string) *slog.Logger {
	return newLogger(os.Stdout, cfg, stage)
}

func newLogger(w io.Writer, cfg *config.Config, stage string) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With("stage", stage)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
