package relay

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// scriptedRelayer returns the queued results in order, then true.
type scriptedRelayer struct {
	mu      sync.Mutex
	results []bool
	calls   int
	block   chan struct{}
	seen    [][]domain.ProcessedAgentData
}

func (s *scriptedRelayer) Relay(_ context.Context, batch []domain.ProcessedAgentData) bool {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, batch)
	if len(s.results) == 0 {
		return true
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func (s *scriptedRelayer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestQueue(r Relayer, size, attempts int) (*Queue, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	q := NewQueue(r, size, attempts, slog.Default(), metrics)
	q.initialBackoff = time.Millisecond
	q.maxBackoff = 4 * time.Millisecond
	return q, metrics
}

func TestQueue_DeliversBatch(t *testing.T) {
	r := &scriptedRelayer{}
	q, metrics := newTestQueue(r, 4, 3)

	require.NoError(t, q.LoadBatch(context.Background(), testBatch(1)))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 1, r.Calls())
	assert.Zero(t, testutil.ToFloat64(metrics.DeadLettered))
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	r := &scriptedRelayer{results: []bool{false, false, true}}
	q, metrics := newTestQueue(r, 4, 3)

	require.NoError(t, q.LoadBatch(context.Background(), testBatch(1)))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 3, r.Calls())
	assert.Zero(t, testutil.ToFloat64(metrics.DeadLettered))
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	r := &scriptedRelayer{results: []bool{false, false, false, false}}
	q, metrics := newTestQueue(r, 4, 3)

	require.NoError(t, q.LoadBatch(context.Background(), testBatch(1)))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 3, r.Calls())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DeadLettered), 0)
}

func TestQueue_FullQueueDeadLetters(t *testing.T) {
	r := &scriptedRelayer{block: make(chan struct{})}
	q, metrics := newTestQueue(r, 1, 1)

	// First batch is taken by the worker and blocks in Relay; the second
	// fills the buffer; the third has nowhere to go.
	require.NoError(t, q.LoadBatch(context.Background(), testBatch(1)))
	require.Eventually(t, func() bool { return len(q.batches) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.LoadBatch(context.Background(), testBatch(2)))

	err := q.LoadBatch(context.Background(), testBatch(3))
	require.ErrorIs(t, err, ErrQueueFull)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DeadLettered), 0)

	close(r.block)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 2, r.Calls())
}

func TestQueue_ClosedRejects(t *testing.T) {
	q, _ := newTestQueue(&scriptedRelayer{}, 1, 1)
	require.NoError(t, q.Close(context.Background()))

	err := q.LoadBatch(context.Background(), testBatch(1))
	require.ErrorIs(t, err, ErrQueueClosed)
	// Closing twice is harmless.
	require.NoError(t, q.Close(context.Background()))
}

func TestQueue_CloseDeadlineAbandonsRetries(t *testing.T) {
	r := &scriptedRelayer{results: []bool{false, false, false, false, false}}
	metrics := observability.NewMetricsForTesting()
	q := NewQueue(r, 4, 5, slog.Default(), metrics)
	q.initialBackoff = time.Hour
	q.maxBackoff = time.Hour

	require.NoError(t, q.LoadBatch(context.Background(), testBatch(1)))
	require.Eventually(t, func() bool { return r.Calls() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DeadLettered), 0)
}

func TestQueue_EmptyBatchIgnored(t *testing.T) {
	r := &scriptedRelayer{}
	q, _ := newTestQueue(r, 1, 1)
	require.NoError(t, q.LoadBatch(context.Background(), nil))
	require.NoError(t, q.Close(context.Background()))
	assert.Zero(t, r.Calls())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}
