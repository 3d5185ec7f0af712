// Package relay forwards classified batches to the next stage over HTTP.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// IngestPath is the ingestion endpoint shared by the hub and the store.
const IngestPath = "/processed_agent_data"

// Client posts batches to an ingestion endpoint. A Client performs exactly
// one request per batch; retrying is the caller's business (see Queue).
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a relay client targeting baseURL's ingestion endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + IngestPath,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Relay serializes batch and delivers it in a single POST. It reports true on
// a 2xx response and false on any other status or transport error.
func (c *Client) Relay(ctx context.Context, batch []domain.ProcessedAgentData) bool {
	if len(batch) == 0 {
		return true
	}

	body, err := json.Marshal(batch)
	if err != nil {
		c.logger.Error("serialize batch failed", "error", err, "batch_size", len(batch))
		return c.outcome(false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("create relay request failed", "error", err)
		return c.outcome(false)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RelayDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("relay request failed", "error", err, "endpoint", c.endpoint, "batch_size", len(batch))
		return c.outcome(false)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("relay rejected",
			"status", resp.StatusCode,
			"body", string(respBody),
			"endpoint", c.endpoint,
			"batch_size", len(batch),
		)
		return c.outcome(false)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug("batch relayed", "endpoint", c.endpoint, "batch_size", len(batch))
	return c.outcome(true)
}

func (c *Client) outcome(ok bool) bool {
	label := "failure"
	if ok {
		label = "success"
	}
	c.metrics.RelayRequests.WithLabelValues(label).Inc()
	return ok
}
