// Package workqueue implements the bounded WorkQueue and fixed
// BackgroundWorker pool (C5): it drains queued turns, invokes the agent
// callback through an Adapter, and reports completion.
package workqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a2ahost/server/pkg/obs"
	"github.com/a2ahost/server/pkg/ratelimiter"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
)

// Adapter invokes the agent's onTurn callback for one activity, forwarding
// any outbound activities the agent sends through ResponseRelay.Send, and
// returns an invoke response for invoke-type activities (nil otherwise).
type Adapter interface {
	ProcessActivity(ctx context.Context, identity string, activity any, agent registry.Agent) (invokeResponse any, err error)
}

// WorkItem is one queued unit of work.
type WorkItem struct {
	Identity   string
	Activity   any
	AgentType  string
	IsInvoke   bool
	Headers    map[string]string
	OnComplete func(resp relay.InvokeResponse)
}

// Config controls pool sizing and shutdown behavior.
type Config struct {
	QueueDepth      int
	WorkerCount     int
	DrainTimeout    time.Duration
}

// DefaultConfig mirrors the spec's defaults: a 60s drain timeout.
func DefaultConfig() Config {
	return Config{
		QueueDepth:   256,
		WorkerCount:  4,
		DrainTimeout: 60 * time.Second,
	}
}

// WorkQueue is a bounded FIFO queue backed by a fixed pool of workers.
type WorkQueue struct {
	cfg     Config
	items   chan WorkItem
	locator *registry.ServiceLocator
	adapter Adapter
	logger  *slog.Logger
	metrics *obs.Metrics
	limiter *ratelimiter.Limiter

	mu      sync.Mutex
	stopped bool

	group    *errgroup.Group
	inFlight sync.WaitGroup
}

// New builds a WorkQueue. adapter invokes the agent's onTurn per item;
// locator resolves an Agent instance by agentType. metrics may be nil, in
// which case queue depth is not recorded. limiter may be nil, in which
// case no per-identity admission control sharpens the bounded queue.
func New(cfg Config, locator *registry.ServiceLocator, adapter Adapter, logger *slog.Logger, metrics *obs.Metrics, limiter *ratelimiter.Limiter) *WorkQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}

	wq := &WorkQueue{
		cfg:     cfg,
		items:   make(chan WorkItem, cfg.QueueDepth),
		locator: locator,
		adapter: adapter,
		logger:  logger,
		metrics: metrics,
		limiter: limiter,
	}

	group, _ := errgroup.WithContext(context.Background())
	wq.group = group
	for i := 0; i < cfg.WorkerCount; i++ {
		group.Go(wq.workerLoop)
	}
	return wq
}

// Submit enqueues item. Returns false if the queue has been stopped, is
// full, or item.Identity has exceeded its admission rate.
func (wq *WorkQueue) Submit(item WorkItem) bool {
	wq.mu.Lock()
	stopped := wq.stopped
	wq.mu.Unlock()
	if stopped {
		return false
	}
	if wq.limiter != nil && !wq.limiter.Allow(item.Identity) {
		return false
	}

	select {
	case wq.items <- item:
		wq.metrics.RecordQueueDepth(context.Background(), 1)
		return true
	default:
		return false
	}
}

func (wq *WorkQueue) workerLoop() error {
	for item := range wq.items {
		wq.metrics.RecordQueueDepth(context.Background(), -1)
		wq.inFlight.Add(1)
		wq.process(item)
		wq.inFlight.Done()
	}
	return nil
}

func (wq *WorkQueue) process(item WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			wq.logger.Error("workqueue: agent callback panicked", "identity", item.Identity, "panic", r)
			wq.completeWithFailure(item)
		}
	}()

	agent, err := wq.locator.Resolve(item.AgentType)
	if err != nil {
		wq.logger.Error("workqueue: failed to resolve agent", "agentType", item.AgentType, "error", err)
		wq.completeWithFailure(item)
		return
	}

	ctx := context.Background()
	resp, err := wq.adapter.ProcessActivity(ctx, item.Identity, item.Activity, agent)
	if err != nil {
		wq.logger.Error("workqueue: agent callback failed", "identity", item.Identity, "error", err)
		wq.completeWithFailure(item)
		return
	}

	if item.OnComplete != nil {
		item.OnComplete(resp)
	}
}

// InternalServerErrorResponse is the invoke response handed to onComplete
// when the agent callback panics or returns an error, per spec §4.5 step 5.
type InternalServerErrorResponse struct {
	Status int
}

func (wq *WorkQueue) completeWithFailure(item WorkItem) {
	if item.OnComplete == nil {
		return
	}
	item.OnComplete(InternalServerErrorResponse{Status: 500})
}

// Stop stops accepting new items and waits up to the configured drain
// timeout for in-flight work to finish. Work still running after the
// timeout is abandoned with a logged warning.
func (wq *WorkQueue) Stop(ctx context.Context) {
	wq.mu.Lock()
	if wq.stopped {
		wq.mu.Unlock()
		return
	}
	wq.stopped = true
	wq.mu.Unlock()

	close(wq.items)

	done := make(chan struct{})
	go func() {
		wq.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(wq.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		wq.logger.Warn("workqueue: drain timeout exceeded, abandoning in-flight work")
	case <-ctx.Done():
		wq.logger.Warn("workqueue: shutdown context canceled before drain completed")
	}
}
