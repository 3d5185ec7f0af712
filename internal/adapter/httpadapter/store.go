package httpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/relay"
	"github.com/couchcryptid/road-telemetry-service/internal/store"
)

// Ingester persists and broadcasts a batch.
type Ingester interface {
	Ingest(ctx context.Context, batch []domain.ProcessedAgentData) ([]domain.StoredRecord, error)
}

// Records is the CRUD surface of the store.
type Records interface {
	Get(ctx context.Context, id int64) (domain.StoredRecord, error)
	List(ctx context.Context) ([]domain.StoredRecord, error)
	Update(ctx context.Context, id int64, p domain.ProcessedAgentData) (domain.StoredRecord, error)
	Delete(ctx context.Context, id int64) (domain.StoredRecord, error)
}

// StoreRoutes serves ingestion, record CRUD and the subscription endpoint.
type StoreRoutes struct {
	ingester  Ingester
	records   Records
	subscribe http.Handler
	logger    *slog.Logger
}

// NewStoreRoutes creates the store routes; subscribe serves GET /ws/{user_id}.
func NewStoreRoutes(ingester Ingester, records Records, subscribe http.Handler, logger *slog.Logger) *StoreRoutes {
	return &StoreRoutes{ingester: ingester, records: records, subscribe: subscribe, logger: logger}
}

func (s *StoreRoutes) Register(mux *http.ServeMux) {
	const p = relay.IngestPath
	mux.HandleFunc("POST "+p, s.ingest)
	mux.HandleFunc("POST "+p+"/{$}", s.ingest)
	mux.HandleFunc("GET "+p, s.list)
	mux.HandleFunc("GET "+p+"/{$}", s.list)
	mux.HandleFunc("GET "+p+"/{id}", s.get)
	mux.HandleFunc("PUT "+p+"/{id}", s.update)
	mux.HandleFunc("DELETE "+p+"/{id}", s.remove)
	mux.Handle("GET /ws/{user_id}", s.subscribe)
}

func (s *StoreRoutes) ingest(w http.ResponseWriter, r *http.Request) {
	batch, ok := decodeBatch(w, r, s.logger)
	if !ok {
		return
	}
	stored, err := s.ingester.Ingest(r.Context(), batch)
	if err != nil {
		s.logger.Error("ingest batch failed", "error", err, "batch_size", len(batch), "persisted", len(stored))
		writeError(w, http.StatusInternalServerError, "persist failed")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *StoreRoutes) list(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.List(r.Context())
	if err != nil {
		s.logger.Error("list records failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *StoreRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.records.Get(r.Context(), id)
	s.respond(w, rec, err, "get")
}

func (s *StoreRoutes) update(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	p, err := domain.ParseProcessedAgentData(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.records.Update(r.Context(), id, p)
	s.respond(w, rec, err, "update")
}

func (s *StoreRoutes) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.records.Delete(r.Context(), id)
	s.respond(w, rec, err, "delete")
}

func (s *StoreRoutes) respond(w http.ResponseWriter, rec domain.StoredRecord, err error, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Error(op+" record failed", "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}
