package ws_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/road-telemetry-service/internal/adapter/ws"
	"github.com/couchcryptid/road-telemetry-service/internal/broadcast"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

type nopStore struct{}

func (nopStore) Insert(_ context.Context, p domain.ProcessedAgentData) (domain.StoredRecord, error) {
	return domain.Flatten(p), nil
}

func setup(t *testing.T) (*httptest.Server, *broadcast.Registry, *broadcast.Ingestor) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	reg := broadcast.NewRegistry(metrics)
	ing := broadcast.NewIngestor(nopStore{}, reg, 2, slog.Default(), metrics)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{user_id}", ws.NewHandler(reg, slog.Default()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg, ing
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func record(userID int, road domain.RoadState) domain.ProcessedAgentData {
	return domain.ProcessedAgentData{
		RoadState: road,
		RainState: domain.RainRain,
		AgentData: domain.AggregatedData{
			Accelerometer: domain.Accelerometer{X: 1, Y: 1, Z: 16000},
			Timestamp:     domain.Timestamp(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
			UserID:        userID,
		},
	}
}

func TestWebSocket_DeliversMatchingRecords(t *testing.T) {
	srv, reg, ing := setup(t)
	a := dial(t, srv, "1")
	b := dial(t, srv, "2")
	require.Eventually(t, func() bool { return len(reg.Snapshot(1)) == 1 && len(reg.Snapshot(2)) == 1 }, time.Second, 5*time.Millisecond)

	_, err := ing.Ingest(context.Background(), []domain.ProcessedAgentData{record(1, domain.RoadPit)})
	require.NoError(t, err)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := a.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	got, err := domain.ParseProcessedAgentData(data)
	require.NoError(t, err)
	assert.Equal(t, domain.RoadPit, got.RoadState)
	assert.Equal(t, 1, got.AgentData.UserID)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic), "payload is a JSON object, not a JSON string")

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "user 2 must not receive user 1's record")
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	srv, reg, ing := setup(t)
	c := dial(t, srv, "3")
	require.Eventually(t, func() bool { return len(reg.Snapshot(3)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ignored")))
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, err := ing.Ingest(context.Background(), []domain.ProcessedAgentData{record(3, domain.RoadEven)})
	require.NoError(t, err)
}

func TestWebSocket_NonIntegerUserID(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/ws/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
