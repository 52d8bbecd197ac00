// Package jsonrpc implements the JsonRpcDispatcher (C7): a JSON-RPC 2.0
// endpoint exposing message/send, message/stream, tasks/get, tasks/cancel,
// tasks/resubscribe, and the push-notification-config get/set pair, per
// spec §4.7.
package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/a2ahost/server/pkg/dispatch"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/transport/sse"
)

// Request is one JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcError mirrors protocol.Error as the JSON-RPC wire shape.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is one JSON-RPC 2.0 response envelope; exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// Handler is the http.Handler serving the JSON-RPC endpoint.
type Handler struct {
	Orchestrator *dispatch.Orchestrator
	Engine       *engine.Engine
	Logger       *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ServeHTTP dispatches a single JSON-RPC request, routing message/stream
// and tasks/resubscribe to SSE and everything else to a single JSON body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, nil, protocol.Errorf(protocol.CodeParseError, "failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, nil, protocol.Errorf(protocol.CodeParseError, "invalid JSON: %v", err))
		return
	}

	if req.ID == nil {
		h.writeError(w, nil, protocol.Errorf(protocol.CodeInvalidParams, "request is missing id"))
		return
	}

	switch req.Method {
	case "message/send":
		h.handleSendMessage(w, r, req)
	case "message/stream":
		h.handleStreamMessage(w, r, req)
	case "tasks/get":
		h.handleGetTask(w, req)
	case "tasks/cancel":
		h.handleCancelTask(w, r, req)
	case "tasks/resubscribe":
		h.handleResubscribe(w, r, req)
	case "tasks/pushNotificationConfig/set":
		h.handleSetPushConfig(w, r, req)
	case "tasks/pushNotificationConfig/get":
		h.handleGetPushConfig(w, r, req)
	default:
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeMethodNotFound, "unknown method %q", req.Method))
	}
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid message/send params: %v", err))
		return
	}
	if len(params.Message.Parts) == 0 {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "message.parts must not be empty"))
		return
	}
	if params.Configuration != nil && params.Configuration.HistoryLength != nil && *params.Configuration.HistoryLength < 0 {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "historyLength must not be negative"))
		return
	}

	task, err := h.Orchestrator.SendMessage(r.Context(), params.Message.ContextID, params.Message.TaskID, &params.Message, params.Configuration.IsBlocking())
	if err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}
	task = trimmed(task, params.Configuration)
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleStreamMessage(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid message/stream params: %v", err))
		return
	}
	if len(params.Message.Parts) == 0 {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "message.parts must not be empty"))
		return
	}

	writer, err := sse.NewWriter(w, req.ID, true)
	if err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInternalError, "streaming not supported by this connection"))
		return
	}
	if err := h.Orchestrator.StreamMessage(r.Context(), params.Message.ContextID, params.Message.TaskID, &params.Message, writer); err != nil {
		h.logger().Error("jsonrpc: message/stream failed", "error", err)
	}
}

func (h *Handler) handleGetTask(w http.ResponseWriter, req Request) {
	var params protocol.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid tasks/get params: %v", err))
		return
	}
	if params.HistoryLength != nil && *params.HistoryLength < 0 {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "historyLength must not be negative"))
		return
	}

	task, err := h.Engine.GetTask(context.Background(), params.ID)
	if err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}
	if params.HistoryLength != nil {
		task = engine.TrimHistory(task, *params.HistoryLength)
	}
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid tasks/cancel params: %v", err))
		return
	}

	task, err := h.Orchestrator.Cancel(r.Context(), params.ID)
	if err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleResubscribe(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid tasks/resubscribe params: %v", err))
		return
	}

	if _, err := h.Engine.GetTask(r.Context(), params.ID); err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}

	writer, err := sse.NewWriter(w, req.ID, true)
	if err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInternalError, "streaming not supported by this connection"))
		return
	}
	if err := h.Orchestrator.Resubscribe(r.Context(), params.ID, writer); err != nil {
		h.logger().Error("jsonrpc: tasks/resubscribe failed", "error", err)
	}
}

func (h *Handler) handleSetPushConfig(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.TaskPushNotificationConfig
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid pushNotificationConfig/set params: %v", err))
		return
	}
	if _, err := h.Engine.GetTask(r.Context(), params.TaskID); err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}
	if params.PushNotificationConfig.ID == "" {
		params.PushNotificationConfig.ID = params.TaskID
	}
	if err := h.Engine.Store().PutPushConfig(r.Context(), params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInternalError, "failed to store push notification config: %v", err))
		return
	}
	h.writeResult(w, req.ID, params)
}

func (h *Handler) handleGetPushConfig(w http.ResponseWriter, r *http.Request, req Request) {
	var params protocol.GetTaskPushNotificationConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeInvalidParams, "invalid pushNotificationConfig/get params: %v", err))
		return
	}
	if _, err := h.Engine.GetTask(r.Context(), params.ID); err != nil {
		h.writeError(w, req.ID, protocol.AsError(err))
		return
	}

	if params.PushNotificationConfigID != "" {
		cfg, err := h.Engine.Store().GetPushConfig(r.Context(), params.ID, params.PushNotificationConfigID)
		if err != nil {
			h.writeError(w, req.ID, protocol.Errorf(protocol.CodeTaskNotFound, "push notification config %q not found", params.PushNotificationConfigID))
			return
		}
		h.writeResult(w, req.ID, protocol.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: *cfg})
		return
	}

	cfgs, err := h.Engine.Store().GetPushConfigs(r.Context(), params.ID)
	if err != nil || len(cfgs) == 0 {
		h.writeError(w, req.ID, protocol.Errorf(protocol.CodeTaskNotFound, "no push notification config registered for task %q", params.ID))
		return
	}
	h.writeResult(w, req.ID, protocol.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: cfgs[0]})
}

func trimmed(task *protocol.Task, cfg *protocol.MessageSendConfiguration) *protocol.Task {
	if cfg == nil || cfg.HistoryLength == nil {
		return task
	}
	return engine.TrimHistory(task, *cfg.HistoryLength)
}

func (h *Handler) writeResult(w http.ResponseWriter, id any, result any) {
	jw := sse.JSONWriter{}
	if err := jw.WriteJSONRPCResult(w, id, result); err != nil {
		h.logger().Error("jsonrpc: failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id any, err *protocol.Error) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: err.Code.JSONRPCCode(), Message: err.Message},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		h.logger().Error("jsonrpc: failed to write error response", "error", encErr)
	}
}
