package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a2ahost/server/pkg/activity"
	"github.com/a2ahost/server/pkg/dispatch"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
	"github.com/a2ahost/server/pkg/taskstore"
	"github.com/a2ahost/server/pkg/turn"
	"github.com/a2ahost/server/pkg/workqueue"
)

type replyOnceAgent struct{ text string }

func (a replyOnceAgent) OnTurn(turnContext any) error {
	tc := turnContext.(*turn.Context)
	tc.SendActivity(&activity.Activity{Type: "message", Text: a.text})
	return nil
}

func newHandler(t *testing.T) *Handler {
	t.Helper()
	store := taskstore.NewMemoryStore()
	eng := engine.New(store)
	relays := relay.NewRegistry()
	loc := registry.NewServiceLocator()
	if err := loc.RegisterAgent("default", replyOnceAgent{text: "world"}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	wq := workqueue.New(workqueue.Config{WorkerCount: 1, QueueDepth: 4, DrainTimeout: 2 * time.Second}, loc, &turn.Adapter{Relays: relays}, nil, nil, nil)
	t.Cleanup(func() { wq.Stop(context.Background()) })

	return &Handler{
		Orchestrator: &dispatch.Orchestrator{Engine: eng, Relays: relays, Queue: wq, Locator: loc},
		Engine:       eng,
	}
}

func doRequest(h *Handler, body map[string]any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMissingIDReturnsInvalidParams(t *testing.T) {
	h := newHandler(t)
	rec := doRequest(h, map[string]any{"jsonrpc": "2.0", "method": "tasks/get", "params": map[string]any{}})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newHandler(t)
	rec := doRequest(h, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "bogus/method", "params": map[string]any{}})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
}

func TestEmptyPartsReturnsInvalidParams(t *testing.T) {
	h := newHandler(t)
	rec := doRequest(h, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "message/send",
		"params": map[string]any{"message": map[string]any{"messageId": "m1", "role": "user", "parts": []any{}}},
	})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestUnknownTaskIDReturnsTaskNotFound(t *testing.T) {
	h := newHandler(t)
	rec := doRequest(h, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tasks/get",
		"params": map[string]any{"id": "does-not-exist"},
	})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32001 {
		t.Fatalf("expected -32001, got %+v", resp.Error)
	}
}

func TestMessageSendBlockingReturnsCompletedTask(t *testing.T) {
	h := newHandler(t)
	rec := doRequest(h, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "message/send",
		"params": map[string]any{"message": map[string]any{"messageId": "m1", "role": "user", "parts": []any{
			map[string]any{"kind": "text", "text": "hi"},
		}}},
	})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	status, _ := result["status"].(map[string]any)
	if status["state"] != "completed" {
		t.Fatalf("expected completed, got %+v", status)
	}
}
