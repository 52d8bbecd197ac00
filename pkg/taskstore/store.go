// Package taskstore is the durable key→value mapping for Task records and
// push-notification configs (C1 in the component design). The engine
// treats a Storage implementation as opaque and performs its own
// get-mutate-put serialization per task id; Storage only has to guarantee
// that operations against distinct keys do not interfere and that a lost
// update against the same key is detected.
package taskstore

import (
	"context"
	"errors"

	"github.com/a2ahost/server/pkg/protocol"
)

// ErrNotFound is returned when a task or push-notification config id is
// unknown to the store.
var ErrNotFound = errors.New("taskstore: not found")

// ErrConflict is returned when the backing store detects a lost update on
// a Put. The engine retries once before surfacing this as an internal
// error.
var ErrConflict = errors.New("taskstore: conflict")

// Storage is the durable backing for Task records and push-notification
// configs. Keys are namespaced task/<id> and push/<taskId> in any
// implementation that exposes a flat keyspace (e.g. etcd); an in-memory
// implementation may ignore the namespacing and use native maps.
type Storage interface {
	// Get returns the task stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (*protocol.Task, error)

	// Put persists task, replacing any prior value for task.ID.
	Put(ctx context.Context, task *protocol.Task) error

	// GetPushConfigs returns every push-notification config registered
	// for taskID, in no particular order.
	GetPushConfigs(ctx context.Context, taskID string) ([]protocol.PushNotificationConfig, error)

	// PutPushConfig stores or replaces a push-notification config.
	PutPushConfig(ctx context.Context, cfg protocol.TaskPushNotificationConfig) error

	// GetPushConfig returns a single push-notification config by id, or
	// ErrNotFound.
	GetPushConfig(ctx context.Context, taskID, configID string) (*protocol.PushNotificationConfig, error)
}

func taskKey(id string) string { return "task/" + id }
func pushKey(taskID string) string { return "push/" + taskID }
