package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/a2ahost/server/pkg/protocol"
)

// MemoryStore is an in-process Storage backed by plain maps. It is the
// default backend: no external dependency, single-process durability only.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]*protocol.Task
	pushConfigs map[string]map[string]protocol.PushNotificationConfig // taskID -> configID -> config
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*protocol.Task),
		pushConfigs: make(map[string]map[string]protocol.PushNotificationConfig),
	}
}

func cloneTask(t *protocol.Task) (*protocol.Task, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("taskstore: marshal task: %w", err)
	}
	var out protocol.Task
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("taskstore: unmarshal task: %w", err)
	}
	return &out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*protocol.Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[taskKey(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t)
}

func (s *MemoryStore) Put(ctx context.Context, task *protocol.Task) error {
	clone, err := cloneTask(task)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tasks[taskKey(task.ID)] = clone
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPushConfigs(ctx context.Context, taskID string) ([]protocol.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID, ok := s.pushConfigs[pushKey(taskID)]
	if !ok {
		return nil, nil
	}
	out := make([]protocol.PushNotificationConfig, 0, len(byID))
	for _, cfg := range byID {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *MemoryStore) PutPushConfig(ctx context.Context, cfg protocol.TaskPushNotificationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pushKey(cfg.TaskID)
	byID, ok := s.pushConfigs[key]
	if !ok {
		byID = make(map[string]protocol.PushNotificationConfig)
		s.pushConfigs[key] = byID
	}
	byID[cfg.PushNotificationConfig.ID] = cfg.PushNotificationConfig
	return nil
}

func (s *MemoryStore) GetPushConfig(ctx context.Context, taskID, configID string) (*protocol.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID, ok := s.pushConfigs[pushKey(taskID)]
	if !ok {
		return nil, ErrNotFound
	}
	cfg, ok := byID[configID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

var _ Storage = (*MemoryStore)(nil)
