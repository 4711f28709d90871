package agent

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
	"github.com/rs/zerolog/log"
)

const Version = "1.0.0"

// GuardStatus exposes the guard configuration for the status endpoint.
type GuardStatus interface {
	Status() guardrails.Status
}

type Handler struct {
	service           *Service
	guard             GuardStatus
	defaultCollection string
}

func NewHandler(service *Service, guard GuardStatus, defaultCollection string) *Handler {
	return &Handler{
		service:           service,
		guard:             guard,
		defaultCollection: defaultCollection,
	}
}

func (h *Handler) readQuery(req *restful.Request, resp *restful.Response) (QueryRequest, bool) {
	var queryRequest QueryRequest

	if err := req.ReadEntity(&queryRequest); err != nil {
		log.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return QueryRequest{}, false
	}

	queryRequest.SetDefaults(h.defaultCollection)
	if err := queryRequest.Validate(); err != nil {
		middleware.HandleError(resp, err, middleware.StatusFor(err, http.StatusBadRequest))
		return QueryRequest{}, false
	}

	return queryRequest, true
}

// Query handles POST /query
func (h *Handler) Query(req *restful.Request, resp *restful.Response) {
	queryRequest, ok := h.readQuery(req, resp)
	if !ok {
		return
	}

	log.Info().
		Str("session_id", queryRequest.SessionID).
		Str("collection", queryRequest.Collection).
		Msg("Process Query")

	queryResponse, err := h.service.Query(req.Request.Context(), queryRequest)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query")
		middleware.HandleError(resp, err, middleware.StatusFor(err, http.StatusInternalServerError))
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, queryResponse)
}

// QueryStream handles POST /query/stream
func (h *Handler) QueryStream(req *restful.Request, resp *restful.Response) {
	queryRequest, ok := h.readQuery(req, resp)
	if !ok {
		return
	}

	log.Info().
		Str("session_id", queryRequest.SessionID).
		Str("collection", queryRequest.Collection).
		Msg("Process Query Stream")

	writer := resp.ResponseWriter
	flusher, ok := writer.(http.Flusher)
	if !ok {
		middleware.HandleError(resp, middleware.ErrStreamingUnsupported, http.StatusInternalServerError)
		return
	}

	resp.AddHeader("Content-Type", "text/event-stream")
	resp.AddHeader("Cache-Control", "no-cache")
	resp.AddHeader("Connection", "keep-alive")
	resp.AddHeader("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	// Headers are gone at this point; failures are reported as an error event.
	if err := h.service.QueryStream(req.Request.Context(), queryRequest, flusher, writer); err != nil {
		log.Error().Err(err).Msg("Failed to query stream")
		return
	}

	flusher.Flush()
}

// History handles GET /conversation/{thread_id}/history
func (h *Handler) History(req *restful.Request, resp *restful.Response) {
	threadID, ok := h.threadID(req, resp)
	if !ok {
		return
	}

	history, err := h.service.History(req.Request.Context(), threadID)
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to load history")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, history)
}

// Conversations handles GET /conversations
func (h *Handler) Conversations(req *restful.Request, resp *restful.Response) {
	conversations, err := h.service.Conversations(req.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list conversations")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, conversations)
}

// Clear handles DELETE /conversation/{thread_id}
func (h *Handler) Clear(req *restful.Request, resp *restful.Response) {
	threadID, ok := h.threadID(req, resp)
	if !ok {
		return
	}

	cleared, err := h.service.Clear(req.Request.Context(), threadID)
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("Failed to clear conversation")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, cleared)
}

// Download handles GET /download/{thread_id}
func (h *Handler) Download(req *restful.Request, resp *restful.Response) {
	threadID, ok := h.threadID(req, resp)
	if !ok {
		return
	}

	path, err := h.service.LatestResult(threadID)
	if err != nil {
		middleware.HandleError(resp, err, middleware.StatusFor(err, http.StatusInternalServerError))
		return
	}

	resp.AddHeader("Content-Type", "application/json")
	resp.AddHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(resp.ResponseWriter, req.Request, path)
}

// Health handles GET /health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	health := h.service.Health(req.Request.Context())
	health.Services["guardrails"] = "disabled"
	if h.guard != nil && h.guard.Status().Enabled {
		health.Services["guardrails"] = "active"
	}

	resp.WriteHeaderAndEntity(http.StatusOK, health)
}

// GuardrailsStatus handles GET /guardrails/status
func (h *Handler) GuardrailsStatus(req *restful.Request, resp *restful.Response) {
	if h.guard == nil {
		resp.WriteHeaderAndEntity(http.StatusOK, GuardrailsStatusResponse{})
		return
	}

	status := h.guard.Status()
	resp.WriteHeaderAndEntity(http.StatusOK, GuardrailsStatusResponse{
		GuardrailsActive: status.Enabled,
		Status:           status,
	})
}

// Info handles GET /
func (h *Handler) Info(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, InfoResponse{
		Name:        "Guard Agent API",
		Version:     Version,
		Description: "Conversational MongoDB analytics protected by input and output guardrails",
		Endpoints: map[string]string{
			"query":         "POST /query",
			"query_stream":  "POST /query/stream",
			"history":       "GET /conversation/{thread_id}/history",
			"conversations": "GET /conversations",
			"clear":         "DELETE /conversation/{thread_id}",
			"download":      "GET /download/{thread_id}",
			"health":        "GET /health",
			"guardrails":    "GET /guardrails/status",
			"openapi":       "GET /openapi.json",
			"metrics":       "GET /metrics",
		},
	})
}

func (h *Handler) threadID(req *restful.Request, resp *restful.Response) (string, bool) {
	threadID := req.PathParameter("thread_id")
	if !ValidSessionID(threadID) {
		middleware.HandleError(resp, middleware.ErrInvalidSessionID, http.StatusBadRequest)
		return "", false
	}
	return threadID, true
}
