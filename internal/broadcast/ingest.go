package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// Persister appends one record and returns it with its assigned id.
type Persister interface {
	Insert(ctx context.Context, p domain.ProcessedAgentData) (domain.StoredRecord, error)
}

// Ingestor persists incoming batches and pushes each record to the
// subscribers of its user.
type Ingestor struct {
	store    Persister
	registry *Registry
	persist  *semaphore.Weighted
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewIngestor creates an Ingestor whose writes, across all concurrent
// Ingest calls, are bounded by workers.
func NewIngestor(store Persister, registry *Registry, workers int, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		store:    store,
		registry: registry,
		persist:  semaphore.NewWeighted(int64(workers)),
		logger:   logger,
		metrics:  metrics,
	}
}

// Ingest persists the batch in order and broadcasts each record once it is
// persisted. Broadcasts of earlier records may still be running while later
// ones persist; Ingest waits for all of them before returning. Each channel
// receives its records in batch order. The first persistence failure stops
// the batch.
func (in *Ingestor) Ingest(ctx context.Context, batch []domain.ProcessedAgentData) ([]domain.StoredRecord, error) {
	out := newFanout(ctx, in, len(batch))
	stored := make([]domain.StoredRecord, 0, len(batch))

	for i, record := range batch {
		rec, err := in.insert(ctx, record)
		if err != nil {
			in.metrics.PersistErrors.Inc()
			out.wait()
			return stored, fmt.Errorf("persist record %d of %d: %w", i+1, len(batch), err)
		}
		in.metrics.RecordsPersisted.Inc()
		stored = append(stored, rec)

		for _, ch := range in.registry.Snapshot(record.AgentData.UserID) {
			out.push(ch, record)
		}
	}

	out.wait()
	return stored, nil
}

// fanout runs one sender goroutine per channel touched by a batch. A
// channel's queue holds up to a whole batch, so push never blocks the
// persist loop.
type fanout struct {
	ctx    context.Context
	in     *Ingestor
	depth  int
	sends  errgroup.Group
	queues map[string]chan domain.ProcessedAgentData
}

func newFanout(ctx context.Context, in *Ingestor, depth int) *fanout {
	return &fanout{
		ctx:    ctx,
		in:     in,
		depth:  max(depth, 1),
		queues: make(map[string]chan domain.ProcessedAgentData),
	}
}

func (f *fanout) push(ch Channel, record domain.ProcessedAgentData) {
	q, ok := f.queues[ch.ID()]
	if !ok {
		q = make(chan domain.ProcessedAgentData, f.depth)
		f.queues[ch.ID()] = q
		f.sends.Go(func() error {
			for r := range q {
				f.in.deliver(f.ctx, ch, r)
			}
			return nil
		})
	}
	q <- record
}

// wait closes every queue and blocks until all senders have drained.
func (f *fanout) wait() {
	for _, q := range f.queues {
		close(q)
	}
	_ = f.sends.Wait()
}

func (in *Ingestor) insert(ctx context.Context, record domain.ProcessedAgentData) (domain.StoredRecord, error) {
	if err := in.persist.Acquire(ctx, 1); err != nil {
		return domain.StoredRecord{}, err
	}
	defer in.persist.Release(1)
	return in.store.Insert(ctx, record)
}

// deliver pushes one record to one channel. Failures are logged and counted;
// they never affect other channels or the ingestion.
func (in *Ingestor) deliver(ctx context.Context, ch Channel, record domain.ProcessedAgentData) {
	if err := ch.Send(ctx, record); err != nil {
		in.metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
		in.logger.Warn("broadcast send failed",
			"error", err,
			"channel", ch.ID(),
			"user_id", record.AgentData.UserID,
		)
		return
	}
	in.metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
}
