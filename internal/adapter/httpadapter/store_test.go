package httpadapter_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/road-telemetry-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/road-telemetry-service/internal/adapter/ws"
	"github.com/couchcryptid/road-telemetry-service/internal/broadcast"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
	"github.com/couchcryptid/road-telemetry-service/internal/store"
)

func newStoreServer(t *testing.T) *httpadapter.Server {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	metrics := observability.NewMetricsForTesting()
	reg := broadcast.NewRegistry(metrics)
	ing := broadcast.NewIngestor(st, reg, 2, slog.Default(), metrics)
	routes := httpadapter.NewStoreRoutes(ing, st, ws.NewHandler(reg, slog.Default()), slog.Default())
	return newTestServer(nil, routes)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStore_IngestThenCRUD(t *testing.T) {
	srv := newStoreServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/processed_agent_data/", strings.NewReader(validBatch)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decode[[]domain.StoredRecord](t, rec)
	require.Len(t, stored, 1)
	id := stored[0].ID
	path := "/processed_agent_data/" + jsonNumber(id)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.StoredRecord](t, rec)
	assert.Equal(t, domain.RoadPit, got.RoadState)
	assert.Equal(t, 4, got.UserID)
	assert.InDelta(t, 16000.0, got.Z, 0)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/processed_agent_data", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.StoredRecord](t, rec), 1)

	update := `{"road_state":"Even","rain_state":"Downpour","agent_data":{"accelerometer":{"x":0,"y":0,"z":0},` +
		`"rain":{"intensity":0.9},"temperature":19,"timestamp":"2024-03-02T00:00:00Z","user_id":4}}`
	rec = serve(srv, httptest.NewRequest(http.MethodPut, path, strings.NewReader(update)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.StoredRecord](t, rec)
	assert.Equal(t, domain.RoadEven, updated.RoadState)
	assert.Equal(t, domain.RainDownpour, updated.RainState)
	assert.InDelta(t, 19.0, updated.Temperature, 0)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStore_MissingRecords(t *testing.T) {
	srv := newStoreServer(t)
	body := `{"road_state":"Even","rain_state":"Clear","agent_data":{"accelerometer":{"x":0,"y":0,"z":0},"timestamp":"2024-03-02T00:00:00Z","user_id":1}}`

	assert.Equal(t, http.StatusNotFound, serve(srv, httptest.NewRequest(http.MethodGet, "/processed_agent_data/77", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, httptest.NewRequest(http.MethodPut, "/processed_agent_data/77", strings.NewReader(body))).Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, httptest.NewRequest(http.MethodDelete, "/processed_agent_data/77", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, httptest.NewRequest(http.MethodGet, "/processed_agent_data/abc", nil)).Code)
}

func TestStore_MalformedIngest(t *testing.T) {
	srv := newStoreServer(t)
	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/processed_agent_data", strings.NewReader(`[{"road_state":"Pit"}]`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
