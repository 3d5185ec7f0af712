package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/relay"
)

// BatchWriter accepts a batch into durable buffering.
type BatchWriter interface {
	LoadBatch(ctx context.Context, batch []domain.ProcessedAgentData) error
}

// HubRoutes accepts edge batches and buffers them for relay to the store.
type HubRoutes struct {
	buffer BatchWriter
	logger *slog.Logger
}

// NewHubRoutes creates the hub ingest route backed by buffer.
func NewHubRoutes(buffer BatchWriter, logger *slog.Logger) *HubRoutes {
	return &HubRoutes{buffer: buffer, logger: logger}
}

func (h *HubRoutes) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+relay.IngestPath, h.ingest)
	mux.HandleFunc("POST "+relay.IngestPath+"/{$}", h.ingest)
}

func (h *HubRoutes) ingest(w http.ResponseWriter, r *http.Request) {
	batch, ok := decodeBatch(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.buffer.LoadBatch(r.Context(), batch); err != nil {
		h.logger.Error("buffer batch failed", "error", err, "batch_size", len(batch))
		writeError(w, http.StatusServiceUnavailable, "buffer unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "count": len(batch)})
}

// decodeBatch reads a JSON array of processed samples, answering 400 itself
// when the body is malformed.
func decodeBatch(w http.ResponseWriter, r *http.Request, logger *slog.Logger) ([]domain.ProcessedAgentData, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	batch, err := domain.ParseProcessedBatch(body)
	if err != nil {
		logger.Warn("rejected malformed batch", "error", err, "remote", r.RemoteAddr)
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return batch, true
}
