package middleware

import (
	"strconv"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Logger logs every request and records the HTTP metrics.
func Logger(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()

	chain.ProcessFilter(req, resp)

	duration := time.Since(start)
	route := req.SelectedRoutePath()
	if route == "" {
		route = "unmatched"
	}

	metrics.HTTPRequests.WithLabelValues(req.Request.Method, route, strconv.Itoa(resp.StatusCode())).Inc()
	metrics.HTTPDuration.WithLabelValues(req.Request.Method, route).Observe(duration.Seconds())

	log.Info().
		Str("method", req.Request.Method).
		Str("path", req.Request.URL.Path).
		Int("status", resp.StatusCode()).
		Dur("duration", duration).
		Str("remote", req.Request.RemoteAddr).
		Msg("HTTP request")
}
