package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/a2ahost/server/pkg/registry"
)

type stubAgent struct{}

func (stubAgent) OnTurn(_ any) error { return nil }

type stubAdapter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (a *stubAdapter) ProcessActivity(_ context.Context, identity string, activity any, agent registry.Agent) (any, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.fail {
		return nil, errFailing
	}
	return "ok", nil
}

var errFailing = &stubErr{"adapter failed"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }

func newLocatorWithAgent(t *testing.T, agentType string) *registry.ServiceLocator {
	loc := registry.NewServiceLocator()
	if err := loc.RegisterAgent(agentType, stubAgent{}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	return loc
}

func TestWorkQueueProcessesSubmittedItem(t *testing.T) {
	adapter := &stubAdapter{}
	loc := newLocatorWithAgent(t, "echo")
	wq := New(Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: time.Second}, loc, adapter, nil, nil, nil)

	resultCh := make(chan any, 1)
	ok := wq.Submit(WorkItem{
		Identity:  "user-1",
		AgentType: "echo",
		OnComplete: func(resp any) {
			resultCh <- resp
		},
	})
	if !ok {
		t.Fatalf("expected submit to succeed")
	}

	select {
	case resp := <-resultCh:
		if resp != "ok" {
			t.Fatalf("expected 'ok', got %v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for completion")
	}

	wq.Stop(context.Background())
}

func TestWorkQueueSubmitAfterStopReturnsFalse(t *testing.T) {
	adapter := &stubAdapter{}
	loc := newLocatorWithAgent(t, "echo")
	wq := New(Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: time.Second}, loc, adapter, nil, nil, nil)

	wq.Stop(context.Background())

	if wq.Submit(WorkItem{Identity: "x", AgentType: "echo"}) {
		t.Fatalf("expected submit after stop to return false")
	}
}

func TestWorkQueueInvokeFailureReturnsInternalServerError(t *testing.T) {
	adapter := &stubAdapter{fail: true}
	loc := newLocatorWithAgent(t, "echo")
	wq := New(Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: time.Second}, loc, adapter, nil, nil, nil)

	resultCh := make(chan any, 1)
	wq.Submit(WorkItem{
		Identity:  "user-1",
		AgentType: "echo",
		IsInvoke:  true,
		OnComplete: func(resp any) {
			resultCh <- resp
		},
	})

	select {
	case resp := <-resultCh:
		if _, ok := resp.(InternalServerErrorResponse); !ok {
			t.Fatalf("expected InternalServerErrorResponse, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for failure completion")
	}

	wq.Stop(context.Background())
}

func TestWorkQueueUnknownAgentTypeCompletesWithFailure(t *testing.T) {
	adapter := &stubAdapter{}
	loc := registry.NewServiceLocator()
	wq := New(Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: time.Second}, loc, adapter, nil, nil, nil)

	resultCh := make(chan any, 1)
	wq.Submit(WorkItem{
		Identity:  "user-1",
		AgentType: "missing",
		IsInvoke:  true,
		OnComplete: func(resp any) {
			resultCh <- resp
		},
	})

	select {
	case resp := <-resultCh:
		if _, ok := resp.(InternalServerErrorResponse); !ok {
			t.Fatalf("expected InternalServerErrorResponse, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for completion")
	}

	wq.Stop(context.Background())
}
