package engine

import (
	"context"
	"testing"
	"time"

	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/taskstore"
)

func textMessage(id, text string) *protocol.Message {
	return &protocol.Message{
		MessageID: id,
		Role:      protocol.MessageRoleUser,
		Parts:     []protocol.Part{{Kind: protocol.PartKindText, Text: text}},
	}
}

func TestCreateOrContinueCreatesSubmittedTask(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()

	task, err := e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status.State != protocol.TaskStateSubmitted {
		t.Fatalf("expected Submitted, got %s", task.Status.State)
	}

	again, err := e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if again.ID != task.ID {
		t.Fatalf("expected continuation of the same task")
	}
}

func TestApplyMessageTransitionsSubmittedToWorking(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)

	task, err := e.ApplyMessage(ctx, "task-1", textMessage("m1", "hello"))
	if err != nil {
		t.Fatalf("apply message: %v", err)
	}
	if task.Status.State != protocol.TaskStateWorking {
		t.Fatalf("expected Working after first message, got %s", task.Status.State)
	}
	if len(task.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(task.History))
	}
}

func TestApplyMessageRejectsEmptyParts(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)

	_, err := e.ApplyMessage(ctx, "task-1", &protocol.Message{MessageID: "m1"})
	perr := protocol.AsError(err)
	if perr.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams, got %v", perr)
	}
}

func TestTerminalTaskIsImmutable(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)
	e.ApplyMessage(ctx, "task-1", textMessage("m1", "hi"))

	canceled, err := e.Cancel(ctx, "task-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !canceled.Status.State.IsTerminal() {
		t.Fatalf("expected terminal state after cancel")
	}

	after, err := e.ApplyMessage(ctx, "task-1", textMessage("m2", "ignored"))
	if err != nil {
		t.Fatalf("apply message on terminal task should not error: %v", err)
	}
	if len(after.History) != len(canceled.History) {
		t.Fatalf("terminal task history mutated: before=%d after=%d", len(canceled.History), len(after.History))
	}
}

func TestCancelTerminalTaskIsNotCancelable(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)
	e.Cancel(ctx, "task-1")

	_, err := e.Cancel(ctx, "task-1")
	perr := protocol.AsError(err)
	if perr.Code != protocol.CodeTaskNotCancelable {
		t.Fatalf("expected TaskNotCancelable, got %v", perr)
	}
}

func TestApplyStatusUpdateDropsRegression(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)
	e.ApplyMessage(ctx, "task-1", textMessage("m1", "hi"))

	completed, err := e.ApplyStatusUpdate(ctx, "task-1", &protocol.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: protocol.TaskStatus{State: protocol.TaskStateCompleted, Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completed.Status.State.IsTerminal() {
		t.Fatalf("expected terminal completed state")
	}

	regressed, err := e.ApplyStatusUpdate(ctx, "task-1", &protocol.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: protocol.TaskStatus{State: protocol.TaskStateWorking, Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("regress attempt should not error: %v", err)
	}
	if regressed.Status.State != protocol.TaskStateCompleted {
		t.Fatalf("expected regression to be dropped, got %s", regressed.Status.State)
	}
}

func TestArtifactUpdateReplaceAndAppend(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)

	first := &protocol.TaskArtifactUpdateEvent{
		TaskID: "task-1",
		Artifact: protocol.Artifact{
			ArtifactID: "art-1",
			Parts:      []protocol.Part{{Kind: protocol.PartKindText, Text: "a"}},
		},
	}
	task, err := e.ApplyArtifactUpdate(ctx, "task-1", first)
	if err != nil {
		t.Fatalf("first artifact update: %v", err)
	}
	if len(task.Artifacts) != 1 || len(task.Artifacts[0].Parts) != 1 {
		t.Fatalf("unexpected artifacts after first update: %+v", task.Artifacts)
	}

	appended := &protocol.TaskArtifactUpdateEvent{
		TaskID: "task-1",
		Append: true,
		Artifact: protocol.Artifact{
			ArtifactID: "art-1",
			Parts:      []protocol.Part{{Kind: protocol.PartKindText, Text: "b"}},
		},
	}
	task, err = e.ApplyArtifactUpdate(ctx, "task-1", appended)
	if err != nil {
		t.Fatalf("append update: %v", err)
	}
	if len(task.Artifacts) != 1 || len(task.Artifacts[0].Parts) != 2 {
		t.Fatalf("expected append to accumulate parts, got %+v", task.Artifacts[0].Parts)
	}

	replaced := &protocol.TaskArtifactUpdateEvent{
		TaskID: "task-1",
		Artifact: protocol.Artifact{
			ArtifactID: "art-1",
			Parts:      []protocol.Part{{Kind: protocol.PartKindText, Text: "c"}},
		},
	}
	task, err = e.ApplyArtifactUpdate(ctx, "task-1", replaced)
	if err != nil {
		t.Fatalf("replace update: %v", err)
	}
	if len(task.Artifacts) != 1 || len(task.Artifacts[0].Parts) != 1 || task.Artifacts[0].Parts[0].Text != "c" {
		t.Fatalf("expected replace to overwrite parts, got %+v", task.Artifacts[0].Parts)
	}
}

func TestSubscribeReceivesCommittedEventsInOrder(t *testing.T) {
	e := New(taskstore.NewMemoryStore())
	ctx := context.Background()
	e.CreateOrContinue(ctx, "ctx-1", "task-1", nil)

	ch, cancel := e.Subscribe("task-1")
	defer cancel()

	e.ApplyMessage(ctx, "task-1", textMessage("m1", "one"))
	e.ApplyMessage(ctx, "task-1", textMessage("m2", "two"))

	first := <-ch
	second := <-ch

	m1, ok := first.(*protocol.Message)
	if !ok || m1.MessageID != "m1" {
		t.Fatalf("expected m1 first, got %+v", first)
	}
	m2, ok := second.(*protocol.Message)
	if !ok || m2.MessageID != "m2" {
		t.Fatalf("expected m2 second, got %+v", second)
	}
}

func TestTrimHistoryKeepsOnlyLastN(t *testing.T) {
	task := &protocol.Task{
		History: []protocol.Message{
			{MessageID: "m1"},
			{MessageID: "m2"},
			{MessageID: "m3"},
		},
	}
	trimmed := TrimHistory(task, 2)
	if len(trimmed.History) != 2 || trimmed.History[0].MessageID != "m2" || trimmed.History[1].MessageID != "m3" {
		t.Fatalf("unexpected trim result: %+v", trimmed.History)
	}
	if len(task.History) != 3 {
		t.Fatalf("TrimHistory must not mutate the original task")
	}
}
