package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns a raw message into a classified sample.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ProcessedAgentData, error)
}

// BatchLoader hands a batch of classified samples to the next stage.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch []domain.ProcessedAgentData) error
}

// Pipeline orchestrates the extract-transform-load loop. Messages within a
// batch are transformed in arrival order on a single goroutine, so per-user
// classification order matches delivery order.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	retry       retrier
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		retry:       newRetrier(200*time.Millisecond, 5*time.Second),
	}
}

// CheckReadiness returns nil once a batch has been handed to the loader.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any samples yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for ctx.Err() == nil {
		if !p.step(ctx) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// step runs one extract-transform-load cycle. Returns false if the pipeline
// should stop.
func (p *Pipeline) step(ctx context.Context) bool {
	start := time.Now()

	raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.retry.wait(ctx)
	}
	if len(raws) == 0 {
		return true
	}

	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))
	p.retry.reset()

	out := p.transform(ctx, raws)
	if len(out) > 0 {
		if err := p.loader.LoadBatch(ctx, out); err != nil {
			// The loader dead-letters what it rejects. Sources do not refetch
			// the batch; a later commit on the same partition covers it.
			p.logger.Error("load batch failed", "error", err, "batch_size", len(out))
			return p.retry.wait(ctx)
		}
		p.metrics.MessagesProduced.Add(float64(len(out)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}

	p.commit(ctx, raws)
	return true
}

// transform converts the batch in order. Messages that fail are logged,
// counted and left out; they are still committed with the rest of the batch.
func (p *Pipeline) transform(ctx context.Context, raws []domain.RawEvent) []domain.ProcessedAgentData {
	out := make([]domain.ProcessedAgentData, 0, len(raws))
	for _, raw := range raws {
		sample, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"key", string(raw.Key),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			continue
		}
		out = append(out, sample)
	}
	return out
}

type partitionKey struct {
	topic     string
	partition int
}

// commit acknowledges the batch. Offsets are cumulative per partition, so
// only the newest event of each partition is committed.
func (p *Pipeline) commit(ctx context.Context, raws []domain.RawEvent) {
	last := make(map[partitionKey]domain.RawEvent)
	var order []partitionKey
	for _, raw := range raws {
		if raw.Commit == nil {
			continue
		}
		k := partitionKey{raw.Topic, raw.Partition}
		prev, seen := last[k]
		if !seen {
			order = append(order, k)
		}
		if !seen || raw.Offset >= prev.Offset {
			last[k] = raw
		}
	}

	for _, k := range order {
		raw := last[k]
		if err := raw.Commit(ctx); err != nil {
			p.logger.Warn("commit offset failed", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		}
	}
}

// retrier is an exponential backoff that doubles up to a cap and resets
// after a successful extract.
type retrier struct {
	initial, max, current time.Duration
}

func newRetrier(initial, maxDelay time.Duration) retrier {
	return retrier{initial: initial, max: maxDelay, current: initial}
}

func (r *retrier) reset() { r.current = r.initial }

// wait sleeps for the current delay and advances it. Returns false if the
// context ended first.
func (r *retrier) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.current)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.current = min(r.current*2, r.max)
	return true
}
