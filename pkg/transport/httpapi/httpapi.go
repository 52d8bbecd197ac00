// Package httpapi implements the HttpDispatcher (C8): the REST surface
// over the turn-orchestration pipeline, per spec §4.8.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/a2ahost/server/pkg/agentcard"
	"github.com/a2ahost/server/pkg/auth"
	"github.com/a2ahost/server/pkg/dispatch"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/obs"
	"github.com/a2ahost/server/pkg/protocol"
	"github.com/a2ahost/server/pkg/transport/sse"
)

// Config controls the REST surface's mount point and auth requirement.
type Config struct {
	// Prefix is the URL prefix every route is mounted under, default "/a2a".
	Prefix      string
	RequireAuth bool
}

// DefaultConfig mirrors spec §6's defaults.
func DefaultConfig() Config {
	return Config{Prefix: "/a2a", RequireAuth: true}
}

// Server wires an Orchestrator, Engine, and agent card onto a chi router
// implementing every route in spec §4.8.
type Server struct {
	cfg          Config
	orchestrator *dispatch.Orchestrator
	engine       *engine.Engine
	cardBuilder  *agentcard.Builder
	validator    *auth.JWTValidator
	metrics      *obs.Metrics
	logger       *slog.Logger
}

// New builds the chi-based http.Handler for the REST surface. validator
// may be nil, in which case every route is unauthenticated regardless of
// cfg.RequireAuth.
func New(cfg Config, orchestrator *dispatch.Orchestrator, eng *engine.Engine, cardBuilder *agentcard.Builder, validator *auth.JWTValidator, metrics *obs.Metrics, logger *slog.Logger) http.Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = "/a2a"
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, orchestrator: orchestrator, engine: eng, cardBuilder: cardBuilder, validator: validator, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(obs.HTTPMiddleware("a2ahost", metrics))

	r.Route(cfg.Prefix, func(api chi.Router) {
		if validator != nil {
			api.With(validator.OptionalHTTPMiddleware).Get("/v1/card", s.handleCard)
		} else {
			api.Get("/v1/card", s.handleCard)
		}

		protected := api.Group(func(p chi.Router) {
			if validator != nil && cfg.RequireAuth {
				p.Use(validator.HTTPMiddleware)
			} else if validator != nil {
				p.Use(validator.OptionalHTTPMiddleware)
			}
		})
		protected.Get("/v1/tasks/{id}", s.handleGetTask)
		protected.Post("/v1/tasks/{id}:cancel", s.handleCancelTask)
		protected.Get("/v1/tasks/{id}:subscribe", s.handleSubscribe)
		protected.Post("/v1/tasks/{id}/pushNotificationConfigs", s.handleSetPushConfig)
		protected.Get("/v1/tasks/{id}/pushNotificationConfigs/{configId}", s.handleGetPushConfig)
		protected.Get("/v1/tasks/{id}/pushNotificationConfigs", s.handleGetPushConfig)
		protected.Post("/v1/message:send", s.handleSendMessage)
		protected.Post("/v1/message:stream", s.handleStreamMessage)
	})

	return r
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	card := s.cardBuilder.Build()
	if !agentcard.Visible(card, auth.GetClaims(r) != nil) {
		http.NotFound(w, r)
		return
	}
	card.URL = requestBaseURL(r, s.cfg.Prefix)
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.engine.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hl := r.URL.Query().Get("historyLength"); hl != "" {
		n, convErr := strconv.Atoi(hl)
		if convErr != nil || n < 0 {
			s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "historyLength must be a non-negative integer"))
			return
		}
		task = engine.TrimHistory(task, n)
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.orchestrator.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.GetTask(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writer, err := sse.NewWriter(w, nil, false)
	if err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInternalError, "streaming not supported by this connection"))
		return
	}
	if err := s.orchestrator.Resubscribe(r.Context(), id, writer); err != nil {
		s.logger.Error("httpapi: tasks/{id}:subscribe failed", "error", err)
	}
}

func (s *Server) handleSetPushConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var cfg protocol.PushNotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "invalid request body: %v", err))
		return
	}
	if _, err := s.engine.GetTask(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.ID == "" {
		cfg.ID = id
	}
	full := protocol.TaskPushNotificationConfig{TaskID: id, PushNotificationConfig: cfg}
	if err := s.engine.Store().PutPushConfig(r.Context(), full); err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInternalError, "failed to store push notification config: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (s *Server) handleGetPushConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.GetTask(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	if configID := chi.URLParam(r, "configId"); configID != "" {
		cfg, err := s.engine.Store().GetPushConfig(r.Context(), id, configID)
		if err != nil {
			s.writeError(w, protocol.Errorf(protocol.CodeTaskNotFound, "push notification config %q not found", configID))
			return
		}
		writeJSON(w, http.StatusOK, protocol.TaskPushNotificationConfig{TaskID: id, PushNotificationConfig: *cfg})
		return
	}

	cfgs, err := s.engine.Store().GetPushConfigs(r.Context(), id)
	if err != nil || len(cfgs) == 0 {
		s.writeError(w, protocol.Errorf(protocol.CodeTaskNotFound, "no push notification config registered for task %q", id))
		return
	}
	out := make([]protocol.TaskPushNotificationConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = protocol.TaskPushNotificationConfig{TaskID: id, PushNotificationConfig: c}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var params protocol.MessageSendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "invalid request body: %v", err))
		return
	}
	if len(params.Message.Parts) == 0 {
		s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "message.parts must not be empty"))
		return
	}
	task, err := s.orchestrator.SendMessage(r.Context(), params.Message.ContextID, params.Message.TaskID, &params.Message, params.Configuration.IsBlocking())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var params protocol.MessageSendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "invalid request body: %v", err))
		return
	}
	if len(params.Message.Parts) == 0 {
		s.writeError(w, protocol.Errorf(protocol.CodeInvalidParams, "message.parts must not be empty"))
		return
	}
	writer, err := sse.NewWriter(w, nil, false)
	if err != nil {
		s.writeError(w, protocol.Errorf(protocol.CodeInternalError, "streaming not supported by this connection"))
		return
	}
	if err := s.orchestrator.StreamMessage(r.Context(), params.Message.ContextID, params.Message.TaskID, &params.Message, writer); err != nil {
		s.logger.Error("httpapi: message:stream failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	e := protocol.AsError(err)
	writeJSON(w, e.Code.HTTPStatus(), map[string]string{"error": e.Message, "code": string(e.Code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestBaseURL(r *http.Request, prefix string) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + prefix
}
