package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/road-telemetry-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

const validBatch = `[{"road_state":"Pit","rain_state":"Drizzle","agent_data":{` +
	`"accelerometer":{"x":1,"y":2,"z":16000},"gps":{"latitude":50.45,"longitude":30.52},` +
	`"rain":{"intensity":0.1},"temperature":24.5,"timestamp":"2024-03-01T12:00:00Z","user_id":4}}]`

type mockBuffer struct {
	err     error
	batches [][]domain.ProcessedAgentData
}

func (m *mockBuffer) LoadBatch(_ context.Context, batch []domain.ProcessedAgentData) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, batch)
	return nil
}

func TestHub_AcceptsBatch(t *testing.T) {
	for _, path := range []string{"/processed_agent_data", "/processed_agent_data/"} {
		t.Run(path, func(t *testing.T) {
			buf := &mockBuffer{}
			srv := newTestServer(nil, httpadapter.NewHubRoutes(buf, slog.Default()))

			rec := serve(srv, httptest.NewRequest(http.MethodPost, path, strings.NewReader(validBatch)))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "accepted", body["status"])
			assert.InDelta(t, 1.0, body["count"], 0)

			require.Len(t, buf.batches, 1)
			assert.Equal(t, 4, buf.batches[0][0].AgentData.UserID)
			assert.Equal(t, domain.RoadPit, buf.batches[0][0].RoadState)
		})
	}
}

func TestHub_MalformedBody(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"object not list": `{"road_state":"Pit"}`,
		"missing agent":   `[{"road_state":"Pit","rain_state":"Clear"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			buf := &mockBuffer{}
			srv := newTestServer(nil, httpadapter.NewHubRoutes(buf, slog.Default()))
			rec := serve(srv, httptest.NewRequest(http.MethodPost, "/processed_agent_data", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, buf.batches)
		})
	}
}

func TestHub_BufferFailure(t *testing.T) {
	buf := &mockBuffer{err: errors.New("kafka down")}
	srv := newTestServer(nil, httpadapter.NewHubRoutes(buf, slog.Default()))

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/processed_agent_data", strings.NewReader(validBatch)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHub_EmptyBatchAccepted(t *testing.T) {
	buf := &mockBuffer{}
	srv := newTestServer(nil, httpadapter.NewHubRoutes(buf, slog.Default()))

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/processed_agent_data", strings.NewReader(`[]`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
