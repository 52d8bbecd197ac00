package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/a2ahost/server/pkg/protocol"
)

// EtcdStore is the distributed alternative to MemoryStore: it backs
// Storage with an etcd v3 keyspace so multiple host processes can share
// one TaskStore. Conflict detection uses etcd's compare-and-swap
// transactions keyed on the mod revision last observed by Get, surfacing
// ErrConflict when another writer raced ahead.
type EtcdStore struct {
	client *clientv3.Client
	prefix string

	mu        sync.Mutex
	revisions map[string]int64
}

// NewEtcdStore builds an EtcdStore over an already-connected client. prefix
// is prepended to every key (e.g. "a2ahost/") to namespace this host's
// keyspace within a shared cluster.
func NewEtcdStore(client *clientv3.Client, prefix string) *EtcdStore {
	return &EtcdStore{
		client:    client,
		prefix:    prefix,
		revisions: make(map[string]int64),
	}
}

func (s *EtcdStore) fullKey(k string) string { return s.prefix + k }

func (s *EtcdStore) Get(ctx context.Context, id string) (*protocol.Task, error) {
	key := s.fullKey(taskKey(id))
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("taskstore: etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}

	var task protocol.Task
	if err := json.Unmarshal(resp.Kvs[0].Value, &task); err != nil {
		return nil, fmt.Errorf("taskstore: unmarshal task: %w", err)
	}

	s.mu.Lock()
	s.revisions[key] = resp.Kvs[0].ModRevision
	s.mu.Unlock()

	return &task, nil
}

func (s *EtcdStore) Put(ctx context.Context, task *protocol.Task) error {
	key := s.fullKey(taskKey(task.ID))
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskstore: marshal task: %w", err)
	}

	s.mu.Lock()
	expected, seen := s.revisions[key]
	s.mu.Unlock()

	var cmp clientv3.Cmp
	if seen {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", expected)
	} else {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	}

	resp, err := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(value))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("taskstore: etcd txn: %w", err)
	}
	if !resp.Succeeded {
		return ErrConflict
	}

	s.mu.Lock()
	s.revisions[key] = resp.Header.Revision
	s.mu.Unlock()
	return nil
}

func (s *EtcdStore) GetPushConfigs(ctx context.Context, taskID string) ([]protocol.PushNotificationConfig, error) {
	prefix := s.fullKey(pushKey(taskID)) + "/"
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("taskstore: etcd list: %w", err)
	}
	out := make([]protocol.PushNotificationConfig, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var cfg protocol.PushNotificationConfig
		if err := json.Unmarshal(kv.Value, &cfg); err != nil {
			return nil, fmt.Errorf("taskstore: unmarshal push config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *EtcdStore) PutPushConfig(ctx context.Context, cfg protocol.TaskPushNotificationConfig) error {
	key := s.fullKey(pushKey(cfg.TaskID)) + "/" + cfg.PushNotificationConfig.ID
	value, err := json.Marshal(cfg.PushNotificationConfig)
	if err != nil {
		return fmt.Errorf("taskstore: marshal push config: %w", err)
	}
	if _, err := s.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("taskstore: etcd put: %w", err)
	}
	return nil
}

func (s *EtcdStore) GetPushConfig(ctx context.Context, taskID, configID string) (*protocol.PushNotificationConfig, error) {
	key := s.fullKey(pushKey(taskID)) + "/" + configID
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("taskstore: etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	var cfg protocol.PushNotificationConfig
	if err := json.Unmarshal(resp.Kvs[0].Value, &cfg); err != nil {
		return nil, fmt.Errorf("taskstore: unmarshal push config: %w", err)
	}
	return &cfg, nil
}

var _ Storage = (*EtcdStore)(nil)
