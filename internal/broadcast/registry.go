// Package broadcast routes stored records to live subscription channels.
package broadcast

import (
	"context"
	"sync"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
	"github.com/couchcryptid/road-telemetry-service/internal/observability"
)

// Channel is one live subscriber connection.
type Channel interface {
	ID() string
	Send(ctx context.Context, record domain.ProcessedAgentData) error
}

// Registry maps user ids to their subscribed channels. The top-level map
// lock only guards lookup and creation of per-user sets; each set has its
// own lock, so traffic for different users never contends.
type Registry struct {
	mu      sync.RWMutex
	sets    map[int]*subscriberSet
	metrics *observability.Metrics
}

type subscriberSet struct {
	mu       sync.Mutex
	channels map[string]Channel
	// retired is set once the set is empty and about to leave the map.
	// Subscribers that find a retired set start over.
	retired bool
}

// NewRegistry creates an empty registry that reports its size to metrics.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		sets:    make(map[int]*subscriberSet),
		metrics: metrics,
	}
}

// Subscribe adds ch to userID's set. Subscribing the same channel twice is a
// no-op.
func (r *Registry) Subscribe(userID int, ch Channel) {
	for {
		set := r.setFor(userID)
		set.mu.Lock()
		if set.retired {
			set.mu.Unlock()
			continue
		}
		if _, ok := set.channels[ch.ID()]; !ok {
			set.channels[ch.ID()] = ch
			r.metrics.Subscribers.Inc()
		}
		set.mu.Unlock()
		return
	}
}

// Unsubscribe removes ch from userID's set. Removing a channel that is not
// subscribed is a no-op. An emptied set is dropped from the registry.
func (r *Registry) Unsubscribe(userID int, ch Channel) {
	r.mu.RLock()
	set, ok := r.sets[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	if _, ok := set.channels[ch.ID()]; ok {
		delete(set.channels, ch.ID())
		r.metrics.Subscribers.Dec()
	}
	empty := len(set.channels) == 0 && !set.retired
	if empty {
		set.retired = true
	}
	set.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.sets[userID] == set {
			delete(r.sets, userID)
		}
		r.mu.Unlock()
	}
}

// Snapshot returns the channels subscribed to userID at this instant. The
// caller iterates the copy without holding any registry lock.
func (r *Registry) Snapshot(userID int) []Channel {
	r.mu.RLock()
	set, ok := r.sets[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	out := make([]Channel, 0, len(set.channels))
	for _, ch := range set.channels {
		out = append(out, ch)
	}
	return out
}

// Len returns the number of user ids with at least one subscriber.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

func (r *Registry) setFor(userID int) *subscriberSet {
	r.mu.RLock()
	set, ok := r.sets[userID]
	r.mu.RUnlock()
	if ok {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sets[userID]; ok {
		return set
	}
	set = &subscriberSet{channels: make(map[string]Channel)}
	r.sets[userID] = set
	return set
}
