// Package protocol defines the wire-level A2A data model: Task, Message,
// Part, Artifact, and the update events streamed over JSON-RPC/REST/SSE.
//
// These types mirror the A2A protocol specification's JSON shapes directly
// (camelCase field names, a "kind" discriminator on Part and on streamed
// events) rather than wrapping a third-party SDK; see SPEC_FULL.md for why.
package protocol

import "time"

// TaskState is the current lifecycle state of a Task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
	TaskStateFailed        TaskState = "failed"
)

// IsTerminal reports whether the state is one of T = {Completed, Canceled,
// Rejected, Failed}. Terminal tasks accept no further mutation.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateRejected, TaskStateFailed:
		return true
	}
	return false
}

// MessageRole identifies who authored a Message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// PartKind discriminates the Part union.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// Part is a tagged-union content fragment of a Message or Artifact.
// Exactly one of Text/File/Data is populated, selected by Kind.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text is set when Kind == PartKindText.
	Text string `json:"text,omitempty"`

	// File is set when Kind == PartKindFile.
	File *FilePart `json:"file,omitempty"`

	// Data is set when Kind == PartKindData.
	Data any `json:"data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// FilePart carries either inline bytes or a URI reference, never both.
type FilePart struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Message is an entry in a Task's append-only history.
type Message struct {
	MessageID string      `json:"messageId"`
	TaskID    string      `json:"taskId,omitempty"`
	ContextID string      `json:"contextId,omitempty"`
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Artifact is a named, id-bearing bundle of Parts emitted as task output.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus is the current state of a Task plus an optional terminal
// message and the timestamp of the transition into this status.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Timestamp time.Time  `json:"timestamp"`
	Message   *Message   `json:"message,omitempty"`
}

// Task is the central, long-lived entity tracked by the engine.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history"`
	Artifacts []Artifact     `json:"artifacts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Kind      string         `json:"kind"`
}

// NewTask builds an empty Submitted task.
func NewTask(id, contextID string, now time.Time) *Task {
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: now,
		},
		History:   make([]Message, 0),
		Artifacts: make([]Artifact, 0),
		Kind:      "task",
	}
}

// TaskStatusUpdateEvent signals a status change for a streamed or polled
// subscriber. Final marks the end of the turn the event belongs to.
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent signals an artifact delta: a fresh artifact, a
// replacement of parts under the same artifactId, or an append.
type TaskArtifactUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append"`
	LastChunk bool           `json:"lastChunk"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PushNotificationConfig is the stored (never delivered) push-callback
// registration for a task.
type PushNotificationConfig struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Authentication map[string]any `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig associates a PushNotificationConfig with a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                  `json:"taskId"`
	PushNotificationConfig PushNotificationConfig  `json:"pushNotificationConfig"`
}
