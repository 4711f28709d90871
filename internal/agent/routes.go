package agent

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
)

func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	threadParam := ws.PathParameter("thread_id", "Conversation thread id").DataType("string")

	ws.
		Route(ws.GET("/").
			To(handler.Info).
			Doc("Service information").
			Metadata(restfulspec.KeyOpenAPITags, []string{"system"}).
			Writes(InfoResponse{}).
			Returns(200, "OK", InfoResponse{}))

	// Health endpoint
	ws.
		Route(ws.GET("/health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"system"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	ws.
		Route(ws.GET("/guardrails/status").
			To(handler.GuardrailsStatus).
			Doc("Guardrails configuration and classifier cache statistics").
			Metadata(restfulspec.KeyOpenAPITags, []string{"system"}).
			Writes(GuardrailsStatusResponse{}).
			Returns(200, "OK", GuardrailsStatusResponse{}))

	ws.
		Route(ws.POST("/query").
			To(handler.Query).
			Doc("Conversational query").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Reads(QueryRequest{}).
			Writes(QueryResponse{}).
			Returns(200, "OK", QueryResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/query/stream").
			To(handler.QueryStream).
			Consumes(restful.MIME_JSON).
			Produces("text/event-stream", restful.MIME_JSON).
			Doc("Streaming conversational query").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Reads(QueryRequest{}).
			Returns(200, "OK", nil).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	ws.
		Route(ws.GET("/conversation/{thread_id}/history").
			To(handler.History).
			Doc("Conversation history").
			Metadata(restfulspec.KeyOpenAPITags, []string{"conversation"}).
			Param(threadParam).
			Writes(HistoryResponse{}).
			Returns(200, "OK", HistoryResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}))

	ws.
		Route(ws.GET("/conversations").
			To(handler.Conversations).
			Doc("Active conversation threads").
			Metadata(restfulspec.KeyOpenAPITags, []string{"conversation"}).
			Writes(ConversationsResponse{}).
			Returns(200, "OK", ConversationsResponse{}))

	ws.
		Route(ws.DELETE("/conversation/{thread_id}").
			To(handler.Clear).
			Doc("Clear conversation memory").
			Metadata(restfulspec.KeyOpenAPITags, []string{"conversation"}).
			Param(threadParam).
			Writes(ClearResponse{}).
			Returns(200, "OK", ClearResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}))

	ws.
		Route(ws.GET("/download/{thread_id}").
			To(handler.Download).
			Produces(restful.MIME_JSON, restful.MIME_OCTET).
			Doc("Download the latest saved result").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Param(threadParam).
			Returns(200, "OK", nil).
			Returns(404, "Not Found", middleware.ErrorResponse{}))

	container.Add(ws)
}
