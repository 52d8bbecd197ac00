// Package engine implements the TaskEngine (C3): state-machine transitions
// over stored Tasks, serialized per task id, with a committed-event stream
// for subscribers.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/taskstore"
)

// Engine applies Message, ArtifactUpdateEvent, and StatusUpdateEvent to
// stored Tasks, enforcing the lifecycle invariants and publishing each
// committed mutation to per-task subscribers in commit order.
type Engine struct {
	store taskstore.Storage
	locks *keyedMutex
	bus   *eventBus
	now   func() time.Time
}

// New builds an Engine over store. now defaults to time.Now; tests may
// override it to exercise the monotonic-timestamp invariant deterministically.
func New(store taskstore.Storage) *Engine {
	return &Engine{
		store: store,
		locks: newKeyedMutex(),
		bus:   newEventBus(),
		now:   time.Now,
	}
}

// Subscribe registers a listener for every event committed against
// taskID from this point on. The returned cancel func must be called once
// the subscriber is done.
func (e *Engine) Subscribe(taskID string) (<-chan any, func()) {
	return e.bus.subscribe(taskID)
}

// Store exposes the backing Storage for callers that need direct access to
// push-notification-config reads/writes, which fall outside the engine's
// own state-machine contract.
func (e *Engine) Store() taskstore.Storage {
	return e.store
}

// GetTask returns the current task, translating a missing id into the
// protocol error taxonomy.
func (e *Engine) GetTask(ctx context.Context, id string) (*protocol.Task, error) {
	t, err := e.store.Get(ctx, id)
	if errors.Is(err, taskstore.ErrNotFound) {
		return nil, protocol.Errorf(protocol.CodeTaskNotFound, "task %q not found", id)
	}
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeInternalError, "%v", err)
	}
	return t, nil
}

// mutateResult is what a mutation closure reports back to the retry loop.
type mutateResult struct {
	task    *protocol.Task
	event   any
	changed bool
}

// mutate serializes fn against every other mutation of the same task id,
// retrying once if the store reports a lost update, per the TaskStore
// conflict-handling contract.
func (e *Engine) mutate(ctx context.Context, taskID string, fn func(current *protocol.Task) (*mutateResult, error)) (*protocol.Task, error) {
	var result *protocol.Task
	err := e.locks.withLock(taskID, func() error {
		for attempt := 0; attempt < 2; attempt++ {
			current, getErr := e.store.Get(ctx, taskID)
			if getErr != nil && !errors.Is(getErr, taskstore.ErrNotFound) {
				return protocol.Errorf(protocol.CodeInternalError, "%v", getErr)
			}
			if errors.Is(getErr, taskstore.ErrNotFound) {
				current = nil
			}

			mr, fnErr := fn(current)
			if fnErr != nil {
				return fnErr
			}
			if !mr.changed {
				result = mr.task
				return nil
			}

			putErr := e.store.Put(ctx, mr.task)
			if errors.Is(putErr, taskstore.ErrConflict) {
				continue
			}
			if putErr != nil {
				return protocol.Errorf(protocol.CodeInternalError, "%v", putErr)
			}

			if mr.event != nil {
				e.bus.publish(taskID, mr.event)
			}
			result = mr.task
			return nil
		}
		return protocol.Errorf(protocol.CodeInternalError, "lost update on task %q after retry", taskID)
	})
	return result, err
}

// CreateOrContinue returns the existing task for taskID if one exists,
// otherwise creates a new Submitted task. When initialMessage is supplied
// it is applied as the first message of the (possibly new) task.
func (e *Engine) CreateOrContinue(ctx context.Context, contextID string, taskID string, initialMessage *protocol.Message) (*protocol.Task, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}

	task, err := e.mutate(ctx, taskID, func(current *protocol.Task) (*mutateResult, error) {
		if current != nil {
			return &mutateResult{task: current, changed: false}, nil
		}
		t := protocol.NewTask(taskID, contextID, e.now())
		return &mutateResult{task: t, event: t, changed: true}, nil
	})
	if err != nil {
		return nil, err
	}

	if initialMessage != nil {
		return e.ApplyMessage(ctx, taskID, initialMessage)
	}
	return task, nil
}

// ApplyMessage appends msg to the task's history, transitioning
// Submitted → Working on the task's first message.
func (e *Engine) ApplyMessage(ctx context.Context, taskID string, msg *protocol.Message) (*protocol.Task, error) {
	if len(msg.Parts) == 0 {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "message %q has no parts", msg.MessageID)
	}

	return e.mutate(ctx, taskID, func(current *protocol.Task) (*mutateResult, error) {
		if current == nil {
			return nil, protocol.Errorf(protocol.CodeTaskNotFound, "task %q not found", taskID)
		}
		if current.Status.State.IsTerminal() {
			return &mutateResult{task: current, changed: false}, nil
		}

		next := *current
		next.History = append(append([]protocol.Message{}, current.History...), *msg)
		if next.Status.State == protocol.TaskStateSubmitted {
			next.Status = protocol.TaskStatus{State: protocol.TaskStateWorking, Timestamp: e.now()}
		}
		return &mutateResult{task: &next, event: msg, changed: true}, nil
	})
}

// statusRank orders states for the monotonicity tie-break: a status update
// may not move a task to a lower rank than it currently occupies.
func statusRank(s protocol.TaskState) int {
	switch s {
	case protocol.TaskStateSubmitted:
		return 0
	case protocol.TaskStateWorking, protocol.TaskStateInputRequired:
		return 1
	default:
		return 2
	}
}

// ApplyStatusUpdate applies an explicit status transition. A transition
// that would violate monotonicity is dropped; the stored task is returned
// unchanged rather than erroring.
func (e *Engine) ApplyStatusUpdate(ctx context.Context, taskID string, evt *protocol.TaskStatusUpdateEvent) (*protocol.Task, error) {
	return e.mutate(ctx, taskID, func(current *protocol.Task) (*mutateResult, error) {
		if current == nil {
			return nil, protocol.Errorf(protocol.CodeTaskNotFound, "task %q not found", taskID)
		}
		if current.Status.State.IsTerminal() {
			return &mutateResult{task: current, changed: false}, nil
		}
		if statusRank(evt.Status.State) < statusRank(current.Status.State) {
			return &mutateResult{task: current, changed: false}, nil
		}

		ts := evt.Status.Timestamp
		if ts.Before(current.Status.Timestamp) {
			ts = current.Status.Timestamp
		}

		next := *current
		next.Status = protocol.TaskStatus{
			State:     evt.Status.State,
			Timestamp: ts,
			Message:   evt.Status.Message,
		}
		return &mutateResult{task: &next, event: evt, changed: true}, nil
	})
}

// ApplyArtifactUpdate merges an artifact delta into the task's artifact
// list: a fresh artifactId is appended; a repeated artifactId replaces the
// prior parts unless Append is set, in which case the new parts are
// concatenated onto the existing list.
func (e *Engine) ApplyArtifactUpdate(ctx context.Context, taskID string, evt *protocol.TaskArtifactUpdateEvent) (*protocol.Task, error) {
	return e.mutate(ctx, taskID, func(current *protocol.Task) (*mutateResult, error) {
		if current == nil {
			return nil, protocol.Errorf(protocol.CodeTaskNotFound, "task %q not found", taskID)
		}
		if current.Status.State.IsTerminal() {
			return &mutateResult{task: current, changed: false}, nil
		}

		next := *current
		next.Artifacts = append([]protocol.Artifact{}, current.Artifacts...)

		idx := -1
		for i, a := range next.Artifacts {
			if a.ArtifactID == evt.Artifact.ArtifactID {
				idx = i
				break
			}
		}

		switch {
		case idx < 0:
			next.Artifacts = append(next.Artifacts, evt.Artifact)
		case evt.Append:
			merged := next.Artifacts[idx]
			merged.Parts = append(append([]protocol.Part{}, merged.Parts...), evt.Artifact.Parts...)
			next.Artifacts[idx] = merged
		default:
			next.Artifacts[idx] = evt.Artifact
		}

		return &mutateResult{task: &next, event: evt, changed: true}, nil
	})
}

// Cancel transitions a non-terminal task to Canceled. Unlike the other
// mutators, cancelling an already-terminal task is an error
// (TaskNotCancelable) rather than a silent no-op.
func (e *Engine) Cancel(ctx context.Context, taskID string) (*protocol.Task, error) {
	return e.mutate(ctx, taskID, func(current *protocol.Task) (*mutateResult, error) {
		if current == nil {
			return nil, protocol.Errorf(protocol.CodeTaskNotFound, "task %q not found", taskID)
		}
		if current.Status.State.IsTerminal() {
			return nil, protocol.Errorf(protocol.CodeTaskNotCancelable, "task %q is already in a terminal state", taskID)
		}

		next := *current
		next.Status = protocol.TaskStatus{State: protocol.TaskStateCanceled, Timestamp: e.now()}
		evt := &protocol.TaskStatusUpdateEvent{
			Kind:      "status-update",
			TaskID:    taskID,
			ContextID: current.ContextID,
			Status:    next.Status,
			Final:     true,
		}
		return &mutateResult{task: &next, event: evt, changed: true}, nil
	})
}

// TrimHistory returns a copy of task whose History is limited to the last
// n entries. n <= 0 returns task unmodified; it does not persist the trim,
// it only projects the read.
func TrimHistory(task *protocol.Task, n int) *protocol.Task {
	if task == nil || n <= 0 || len(task.History) <= n {
		return task
	}
	trimmed := *task
	trimmed.History = append([]protocol.Message{}, task.History[len(task.History)-n:]...)
	return &trimmed
}
