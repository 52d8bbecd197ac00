// Package dispatch holds the turn-orchestration logic shared by the
// JSON-RPC (C7) and REST (C8) dispatchers: submitting a message to the
// WorkQueue, translating the agent's outbound Activities into TaskEngine
// commits, and streaming or blocking on the result. Neither transport
// reimplements this; they differ only in framing (SSE envelope vs. plain
// REST JSON).
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/a2ahost/server/pkg/activity"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
	"github.com/a2ahost/server/pkg/transport/sse"
	"github.com/a2ahost/server/pkg/turn"
	"github.com/a2ahost/server/pkg/workqueue"
)

// defaultArtifactID names the single response artifact this host accumulates
// per turn; every outbound activity of the turn is appended to this one
// artifact.
const defaultArtifactID = "response"

// Orchestrator wires the engine, relay, and work queue together into the
// two turn shapes the dispatchers need: a blocking/non-blocking
// message/send and a streaming message/stream.
type Orchestrator struct {
	Engine  *engine.Engine
	Relays  *relay.Registry
	Queue   *workqueue.WorkQueue
	Locator *registry.ServiceLocator
	Logger  *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// agentTypeFor extracts the agentType to resolve from message metadata,
// defaulting to "default" when unset.
func agentTypeFor(msg *protocol.Message) string {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["agentType"].(string); ok && v != "" {
			return v
		}
	}
	return "default"
}

func identityFor(msg *protocol.Message) string {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["identity"].(string); ok && v != "" {
			return v
		}
	}
	return "anonymous"
}

// submitTurn applies msg to the task, builds the corresponding Activity, and
// hands it to the work queue. It returns the task after the message was
// applied (state Working) and the request id the turn runs under.
func (o *Orchestrator) submitTurn(ctx context.Context, contextID, taskID string, msg *protocol.Message) (*protocol.Task, string, error) {
	if taskID != "" {
		if existing, err := o.Engine.GetTask(ctx, taskID); err == nil && existing.Status.State.IsTerminal() {
			return nil, "", protocol.Errorf(protocol.CodeInvalidRequest, "task %q is already in a terminal state", taskID)
		}
	}

	task, err := o.Engine.CreateOrContinue(ctx, contextID, taskID, msg)
	if err != nil {
		return nil, "", err
	}

	act := activity.ProtocolToActivity(msg, activity.ChannelAccount{ID: identityFor(msg)}, activity.ChannelAccount{ID: "agent"})
	act.ID = uuid.NewString()
	act.Conversation = activity.ConversationReference{ID: task.ID}

	requestID := act.ID
	item := workqueue.WorkItem{
		Identity:  identityFor(msg),
		Activity:  act,
		AgentType: agentTypeFor(msg),
		OnComplete: func(resp any) {
			o.Relays.MarkComplete(requestID, resp)
		},
	}

	if !o.Queue.Submit(item) {
		return nil, "", protocol.Errorf(protocol.CodeInternalError, "work queue is full or stopped")
	}
	return task, requestID, nil
}

// SendMessage implements message/send. When blocking is true it waits for
// the turn to finish and returns the settled task; otherwise it returns the
// task immediately in its just-submitted Working state.
func (o *Orchestrator) SendMessage(ctx context.Context, contextID, taskID string, msg *protocol.Message, blocking bool) (*protocol.Task, error) {
	task, requestID, err := o.submitTurn(ctx, contextID, taskID, msg)
	if err != nil {
		return nil, err
	}
	if !blocking {
		return task, nil
	}

	final, err := o.runTurn(ctx, task.ID, requestID, nil)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// StreamMessage implements message/stream: it submits the turn, emits an
// initial task snapshot frame, then streams one frame per committed engine
// event as the turn progresses, per spec testable property #6.
func (o *Orchestrator) StreamMessage(ctx context.Context, contextID, taskID string, msg *protocol.Message, w *sse.Writer) error {
	task, requestID, err := o.submitTurn(ctx, contextID, taskID, msg)
	if err != nil {
		return err
	}

	if err := w.WriteEvent(sse.KindTask, task); err != nil {
		return nil // broken pipe: terminate the turn silently, per spec §4.6
	}

	_, err = o.runTurn(ctx, task.ID, requestID, w)
	return err
}

// runTurn drains the relay for requestID, translating each outbound
// Activity into engine commits, and streaming them through w when w is
// non-nil. It returns the task's final settled state.
func (o *Orchestrator) runTurn(ctx context.Context, taskID, requestID string, w *sse.Writer) (*protocol.Task, error) {
	var lastActivity *activity.Activity
	var streamErr error
	clientGone := false

	resp, err := o.Relays.DrainUntilComplete(ctx, requestID, func(a any) {
		act, ok := a.(*activity.Activity)
		if !ok || streamErr != nil {
			return
		}
		lastActivity = act

		artifact := activity.ActivityToArtifact(act, defaultArtifactID, "")
		if artifact == nil {
			return
		}
		evt := &protocol.TaskArtifactUpdateEvent{
			Kind:      "artifact-update",
			TaskID:    taskID,
			Artifact:  *artifact,
			Append:    true,
			LastChunk: false,
		}
		if _, applyErr := o.Engine.ApplyArtifactUpdate(ctx, taskID, evt); applyErr != nil {
			streamErr = applyErr
			return
		}
		if w != nil && !clientGone {
			if err := w.WriteEvent(sse.KindArtifactUpdate, evt); err != nil {
				// Broken pipe: stop writing for the rest of this turn, but
				// keep committing engine events so the worker still runs
				// to completion, per spec §5's no-hard-preemption rule.
				clientGone = true
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if streamErr != nil {
		return nil, streamErr
	}
	if resp != nil {
		if ise, ok := resp.(workqueue.InternalServerErrorResponse); ok {
			return o.failTurn(ctx, taskID, fmt.Sprintf("agent callback failed with status %d", ise.Status), w)
		}
	}

	return o.settleTurn(ctx, taskID, lastActivity, w)
}

// settleTurn commits the final Message (when the agent produced content)
// and the terminal status, deriving the status from the last activity's
// InputHint/Code per the C3 state machine.
func (o *Orchestrator) settleTurn(ctx context.Context, taskID string, last *activity.Activity, w *sse.Writer) (*protocol.Task, error) {
	task, err := o.Engine.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if last != nil {
		msg := activity.ActivityToMessage(last, uuid.NewString(), taskID, task.ContextID, protocol.MessageRoleAgent)
		if len(msg.Parts) > 0 {
			if task, err = o.Engine.ApplyMessage(ctx, taskID, msg); err != nil {
				return nil, err
			}
			if w != nil {
				if err := w.WriteEvent(sse.KindMessage, msg); err != nil {
					return task, nil
				}
			}
		}
	}

	state := protocol.TaskStateCompleted
	switch {
	case last != nil && last.Code == activity.CodeUserCancelled:
		state = protocol.TaskStateCanceled
	case last != nil && last.Code == activity.CodeError:
		state = protocol.TaskStateFailed
	case last != nil && (last.InputHint == activity.InputHintExpectingInput || last.InputHint == activity.InputHintAcceptingInput):
		state = protocol.TaskStateInputRequired
	}

	evt := &protocol.TaskStatusUpdateEvent{
		Kind:      "status-update",
		TaskID:    taskID,
		ContextID: task.ContextID,
		Status:    protocol.TaskStatus{State: state},
		Final:     true,
	}
	final, err := o.Engine.ApplyStatusUpdate(ctx, taskID, evt)
	if err != nil {
		return nil, err
	}
	if w != nil {
		evt.Status = final.Status
		if err := w.WriteEvent(sse.KindStatusUpdate, evt); err != nil {
			return final, nil
		}
	}
	return final, nil
}

// failTurn marks the task Failed after an agent-callback exception, per
// spec §7's "terminal status event with state Failed" rule.
func (o *Orchestrator) failTurn(ctx context.Context, taskID, reason string, w *sse.Writer) (*protocol.Task, error) {
	o.logger().Error("dispatch: turn failed", "taskID", taskID, "reason", reason)
	evt := &protocol.TaskStatusUpdateEvent{
		Kind:   "status-update",
		TaskID: taskID,
		Status: protocol.TaskStatus{State: protocol.TaskStateFailed},
		Final:  true,
	}
	final, err := o.Engine.ApplyStatusUpdate(ctx, taskID, evt)
	if err != nil {
		return nil, err
	}
	if w != nil {
		evt.Status = final.Status
		_ = w.WriteEvent(sse.KindStatusUpdate, evt)
	}
	return final, nil
}

// Cancel implements tasks/cancel: it delivers a synthetic end-of-conversation
// activity with UserCancelled to the agent that owns the task, then
// transitions the task to Canceled, per spec §5's cancellation semantics.
// The synthetic activity is fire-and-forget; the caller does not wait for
// the agent to act on it.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) (*protocol.Task, error) {
	task, err := o.Engine.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.State.IsTerminal() {
		return nil, protocol.Errorf(protocol.CodeTaskNotCancelable, "task %q is already in a terminal state", taskID)
	}

	agentType, identity := "default", "anonymous"
	if len(task.History) > 0 {
		agentType, identity = agentTypeFor(&task.History[0]), identityFor(&task.History[0])
	}

	act := &activity.Activity{
		Type:         "endOfConversation",
		ID:           uuid.NewString(),
		Conversation: activity.ConversationReference{ID: taskID},
		Code:         activity.CodeUserCancelled,
	}
	// The cancellation notice is fire-and-forget: nothing blocks on its
	// relay, but a goroutine still drains it so the relay entry is
	// reclaimed instead of leaking in the registry.
	o.Queue.Submit(workqueue.WorkItem{
		Identity:  identity,
		Activity:  act,
		AgentType: agentType,
		OnComplete: func(resp any) {
			o.Relays.MarkComplete(act.ID, resp)
		},
	})
	go func() {
		_, _ = o.Relays.DrainUntilComplete(context.Background(), act.ID, func(any) {})
	}()

	return o.Engine.Cancel(ctx, taskID)
}

// Resubscribe streams every event committed against taskID from this point
// on, for a client reconnecting to an in-progress or already-finished task.
func (o *Orchestrator) Resubscribe(ctx context.Context, taskID string, w *sse.Writer) error {
	task, err := o.Engine.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := w.WriteEvent(sse.KindTask, task); err != nil {
		return nil
	}
	if task.Status.State.IsTerminal() {
		return nil
	}

	events, cancel := o.Engine.Subscribe(taskID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			kind, final := classifyEvent(evt)
			if err := w.WriteEvent(kind, evt); err != nil {
				return nil
			}
			if final {
				return nil
			}
		}
	}
}

func classifyEvent(evt any) (sse.EventKind, bool) {
	switch e := evt.(type) {
	case *protocol.Task:
		return sse.KindTask, false
	case *protocol.Message:
		return sse.KindMessage, false
	case *protocol.TaskStatusUpdateEvent:
		return sse.KindStatusUpdate, e.Final
	case *protocol.TaskArtifactUpdateEvent:
		return sse.KindArtifactUpdate, false
	default:
		return sse.KindMessage, false
	}
}

// ensure turn.Adapter satisfies workqueue.Adapter at compile time alongside
// this package's use of it.
var _ workqueue.Adapter = (*turn.Adapter)(nil)
