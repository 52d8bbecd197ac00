// Package relay implements the ResponseRelay (C4): a per-request
// single-producer/single-consumer handoff between the background worker
// that invokes the agent and the HTTP response writer draining its output.
package relay

import (
	"context"
	"sync"
	"sync/atomic"
)

// InvokeResponse is the terminal payload a producer hands to markComplete;
// its shape is opaque to the relay (the dispatcher interprets it). Declared
// as an alias (not a defined type) so callers can pass plain `any`-typed
// func literals for WorkItem.OnComplete without a conversion.
type InvokeResponse = any

// relay is one request's channel plus its completion signal.
type relay struct {
	activities chan any
	done       chan InvokeResponse
	closeOnce  sync.Once
	completed  atomic.Bool
}

func newRelay() *relay {
	return &relay{
		activities: make(chan any, 16),
		done:       make(chan InvokeResponse, 1),
	}
}

// Registry is the process-wide table of live relays, keyed by requestId.
// A relay is created lazily on first use and removed once drained.
type Registry struct {
	mu      sync.Mutex
	relays  map[string]*relay
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{relays: make(map[string]*relay)}
}

func (r *Registry) relayFor(requestID string) *relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.relays[requestID]
	if !ok {
		rl = newRelay()
		r.relays[requestID] = rl
	}
	return rl
}

func (r *Registry) forget(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, requestID)
}

// Send hands an outbound activity to the consumer for requestID. Producer
// side; called by the background worker. Activities sent after
// MarkComplete has been called for requestID are silently discarded.
func (r *Registry) Send(requestID string, activity any) {
	rl := r.relayFor(requestID)
	if rl.completed.Load() {
		return
	}
	select {
	case rl.activities <- activity:
	default:
		// Consumer fell behind; drop rather than block the worker.
	}
}

// MarkComplete signals that the worker has finished producing activities
// for requestID. Exactly one call per request is expected.
func (r *Registry) MarkComplete(requestID string, resp InvokeResponse) {
	rl := r.relayFor(requestID)
	rl.closeOnce.Do(func() {
		rl.completed.Store(true)
		rl.done <- resp
	})
}

// DrainUntilComplete is the consumer side: it invokes onActivity for each
// activity as it arrives, returning when MarkComplete is called or ctx is
// canceled. The relay is disposed from the registry before returning.
func (r *Registry) DrainUntilComplete(ctx context.Context, requestID string, onActivity func(any)) (InvokeResponse, error) {
	rl := r.relayFor(requestID)
	defer r.forget(requestID)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp := <-rl.done:
			r.drainRemaining(rl, onActivity)
			return resp, nil
		case act := <-rl.activities:
			onActivity(act)
		}
	}
}

// drainRemaining flushes any activities already queued ahead of the
// completion signal so the consumer sees every event the producer sent
// before it observes the turn ending.
func (r *Registry) drainRemaining(rl *relay, onActivity func(any)) {
	for {
		select {
		case act := <-rl.activities:
			onActivity(act)
		default:
			return
		}
	}
}
