package dispatch

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/a2ahost/server/pkg/activity"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
	"github.com/a2ahost/server/pkg/taskstore"
	"github.com/a2ahost/server/pkg/transport/sse"
	"github.com/a2ahost/server/pkg/turn"
	"github.com/a2ahost/server/pkg/workqueue"
)

type replyOnceAgent struct{ text string }

func (a replyOnceAgent) OnTurn(turnContext any) error {
	tc := turnContext.(*turn.Context)
	tc.SendActivity(&activity.Activity{Type: "message", Text: a.text})
	return nil
}

func newOrchestrator(t *testing.T, agentType string, agent registry.Agent) *Orchestrator {
	t.Helper()
	store := taskstore.NewMemoryStore()
	eng := engine.New(store)
	relays := relay.NewRegistry()
	loc := registry.NewServiceLocator()
	if err := loc.RegisterAgent(agentType, agent); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	wq := workqueue.New(workqueue.Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: 2 * time.Second}, loc, &turn.Adapter{Relays: relays}, nil, nil, nil)
	t.Cleanup(func() { wq.Stop(context.Background()) })

	return &Orchestrator{Engine: eng, Relays: relays, Queue: wq, Locator: loc}
}

func textMessage(text string) *protocol.Message {
	return &protocol.Message{
		MessageID: uuid.NewString(),
		Role:      protocol.MessageRoleUser,
		Parts:     []protocol.Part{{Kind: protocol.PartKindText, Text: text}},
	}
}

func TestSendMessageBlockingSettlesToCompleted(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	task, err := o.SendMessage(context.Background(), "ctx-1", "", textMessage("hello"), true)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if task.Status.State != protocol.TaskStateCompleted {
		t.Fatalf("expected completed, got %s", task.Status.State)
	}
	if len(task.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %d", len(task.Artifacts))
	}
	if len(task.History) != 2 {
		t.Fatalf("expected 2 history entries (user + agent), got %d", len(task.History))
	}
}

func TestSendMessageNonBlockingReturnsImmediately(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	task, err := o.SendMessage(context.Background(), "ctx-2", "", textMessage("hello"), false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if task.Status.State != protocol.TaskStateWorking {
		t.Fatalf("expected working immediately after non-blocking send, got %s", task.Status.State)
	}
}

func TestStreamMessageEmitsTaskArtifactMessageStatus(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	rec := httptest.NewRecorder()
	w, err := sse.NewWriter(rec, "req-1", true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := o.StreamMessage(context.Background(), "ctx-3", "", textMessage("hello"), w); err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{"event: task", "event: artifact-update", "event: message", "event: status-update"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, body)
		}
	}
	if !strings.Contains(body, `"final":true`) {
		t.Fatalf("expected a final status-update frame, got:\n%s", body)
	}
}

func TestSendMessageToTerminalTaskIsRejected(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	task, err := o.SendMessage(context.Background(), "ctx-5", "", textMessage("hello"), true)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if task.Status.State != protocol.TaskStateCompleted {
		t.Fatalf("expected completed, got %s", task.Status.State)
	}

	if _, err := o.SendMessage(context.Background(), "ctx-5", task.ID, textMessage("again"), true); err == nil {
		t.Fatalf("expected SendMessage on a completed task to be rejected")
	} else if protocol.AsError(err).Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest, got %v", protocol.AsError(err).Code)
	}
}

func TestSendMessageToCanceledTaskIsRejected(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	task, err := o.SendMessage(context.Background(), "ctx-6", "", textMessage("hello"), false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := o.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := o.SendMessage(context.Background(), "ctx-6", task.ID, textMessage("again"), true); err == nil {
		t.Fatalf("expected SendMessage on a canceled task to be rejected")
	} else if protocol.AsError(err).Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest, got %v", protocol.AsError(err).Code)
	}
}

func TestResubscribeStreamsTaskSnapshotForTerminalTask(t *testing.T) {
	o := newOrchestrator(t, "default", replyOnceAgent{text: "world"})

	task, err := o.SendMessage(context.Background(), "ctx-4", "", textMessage("hello"), true)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	rec := httptest.NewRecorder()
	w, err := sse.NewWriter(rec, "req-2", true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := o.Resubscribe(context.Background(), task.ID, w); err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "event: task") {
		t.Fatalf("expected a task snapshot frame, got:\n%s", rec.Body.String())
	}
}
