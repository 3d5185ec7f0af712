package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

var (
	// ErrQueueFull is returned when a batch arrives while the queue is at capacity.
	// The batch has already been dead-lettered.
	ErrQueueFull = errors.New("relay queue full")
	// ErrQueueClosed is returned for batches offered after Close.
	ErrQueueClosed = errors.New("relay queue closed")
)

// Relayer delivers one batch and reports whether it was accepted.
type Relayer interface {
	Relay(ctx context.Context, batch []domain.ProcessedAgentData) bool
}

// Queue is a bounded buffer of batches drained by a single worker that
// retries each batch with exponential backoff and dead-letters it once the
// attempts run out. It implements pipeline.BatchLoader, so the goroutine that
// services the inbound transport never blocks on a relay request.
type Queue struct {
	relayer     Relayer
	maxAttempts int
	logger      *slog.Logger
	metrics     *observability.Metrics

	initialBackoff time.Duration
	maxBackoff     time.Duration

	batches chan []domain.ProcessedAgentData
	mu      sync.RWMutex
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue holding up to size batches and starts its worker.
func NewQueue(r Relayer, size, maxAttempts int, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		relayer:        r,
		maxAttempts:    maxAttempts,
		logger:         logger,
		metrics:        metrics,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		batches:        make(chan []domain.ProcessedAgentData, size),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go q.run()
	return q
}

// LoadBatch enqueues batch without blocking. A full queue dead-letters the
// batch and returns ErrQueueFull.
func (q *Queue) LoadBatch(_ context.Context, batch []domain.ProcessedAgentData) error {
	if len(batch) == 0 {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.batches <- batch:
		q.metrics.RelayQueueDepth.Set(float64(len(q.batches)))
		return nil
	default:
		q.deadLetter(batch, "queue full")
		return ErrQueueFull
	}
}

// Close stops accepting batches and waits for the worker to drain what is
// queued. If ctx ends first, pending retries are abandoned and the remaining
// batches are dead-lettered.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.batches)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for batch := range q.batches {
		q.metrics.RelayQueueDepth.Set(float64(len(q.batches)))
		q.deliver(batch)
	}
}

func (q *Queue) deliver(batch []domain.ProcessedAgentData) {
	backoff := q.initialBackoff
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		if q.ctx.Err() != nil {
			q.deadLetter(batch, "shutdown")
			return
		}
		if q.relayer.Relay(q.ctx, batch) {
			return
		}
		if attempt == q.maxAttempts {
			break
		}
		q.logger.Info("relay failed, retrying", "attempt", attempt, "backoff", backoff, "batch_size", len(batch))
		if !sleepWithContext(q.ctx, backoff) {
			q.deadLetter(batch, "shutdown")
			return
		}
		backoff = nextBackoff(backoff, q.maxBackoff)
	}
	q.deadLetter(batch, "attempts exhausted")
}

// deadLetter logs the full batch so it can be replayed by hand.
func (q *Queue) deadLetter(batch []domain.ProcessedAgentData, reason string) {
	q.metrics.DeadLettered.Inc()
	payload, err := json.Marshal(batch)
	if err != nil {
		q.logger.Error("dead-lettered batch", "reason", reason, "batch_size", len(batch), "error", err)
		return
	}
	q.logger.Error("dead-lettered batch", "reason", reason, "batch_size", len(batch), "payload", string(payload))
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
