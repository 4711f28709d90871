package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/audit"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/rs/zerolog"
)

const (
	DirectionStream = "stream"
	truncatedSuffix = "... [truncated by guardrails]"
)

// ContentGuard is the part of guardrails.Guard the filter depends on.
type ContentGuard interface {
	Enabled() bool
	ValidateInput(ctx context.Context, text string) guardrails.Report
	ValidateOutput(ctx context.Context, text string) guardrails.Report
	Messages() guardrails.Messages
}

// GuardFilter validates requests and responses of protected endpoints.
// Internal failures never block traffic: the original request or response
// is passed on unchanged.
type GuardFilter struct {
	guard           ContentGuard
	matcher         *EndpointMatcher
	sink            audit.Sink
	maxOutputLength int
	streamMinLength int
	logger          *zerolog.Logger
}

func NewGuardFilter(guard ContentGuard, cfg *config.GuardrailsConfig, sink audit.Sink, logger *zerolog.Logger) *GuardFilter {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &GuardFilter{
		guard:           guard,
		matcher:         NewEndpointMatcher(cfg.ProtectedEndpoints),
		sink:            sink,
		maxOutputLength: cfg.MaxOutputLength,
		streamMinLength: cfg.StreamMinLength,
		logger:          logger,
	}
}

func (f *GuardFilter) Filter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if !f.guard.Enabled() {
		chain.ProcessFilter(req, resp)
		return
	}

	path := req.Request.URL.Path
	endpoint, ok := f.matcher.Match(path)
	if !ok {
		chain.ProcessFilter(req, resp)
		return
	}

	if endpoint.Input && req.Request.Method == http.MethodPost {
		if !f.checkInput(req, resp) {
			return
		}
	}

	switch {
	case endpoint.Stream:
		f.processStream(req, resp, chain)
	case endpoint.Output:
		f.processOutput(req, resp, chain)
	default:
		chain.ProcessFilter(req, resp)
	}
}

// checkInput validates the query field of the request body. It returns false
// when a violation response was written.
func (f *GuardFilter) checkInput(req *restful.Request, resp *restful.Response) bool {
	ctx := req.Request.Context()
	path := req.Request.URL.Path

	if req.Request.Body == nil {
		return true
	}
	body, err := io.ReadAll(req.Request.Body)
	_ = req.Request.Body.Close()
	req.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		f.logger.Warn().Err(err).Str("path", path).Msg("Failed to read request body, skipping input validation")
		return true
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}

	if !utf8.Valid(body) {
		f.reject(ctx, resp, guardrails.DirectionInput, path, guardrails.ViolationEncoding)
		return false
	}

	var payload map[string]any
	if err := decodeJSON(body, &payload); err != nil || payload == nil {
		f.reject(ctx, resp, guardrails.DirectionInput, path, guardrails.ViolationFormat)
		return false
	}

	query, _ := payload["query"].(string)
	if strings.TrimSpace(query) == "" {
		return true
	}

	report := f.guard.ValidateInput(ctx, query)
	f.publishReport(ctx, guardrails.DirectionInput, path, report)

	if report.Blocked() {
		writeViolation(resp, report.Violation.Type, report.Violation.Message)
		return false
	}

	if report.Modified() {
		payload["query"] = report.Text
		rewritten, err := json.Marshal(payload)
		if err != nil {
			f.logger.Warn().Err(err).Str("path", path).Msg("Failed to rewrite filtered query, forwarding original")
			return true
		}
		req.Request.Body = io.NopCloser(bytes.NewReader(rewritten))
		req.Request.ContentLength = int64(len(rewritten))
	}

	return true
}

func (f *GuardFilter) processOutput(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	original := resp.ResponseWriter
	recorder := newBufferedWriter()
	resp.ResponseWriter = recorder
	defer func() { resp.ResponseWriter = original }()

	chain.ProcessFilter(req, resp)

	resp.ResponseWriter = original

	body, violation := f.inspectOutput(req.Request.Context(), req.Request.URL.Path, recorder)
	if violation != nil {
		writeViolation(resp, violation.Type, violation.Message)
		return
	}

	header := original.Header()
	maps.Copy(header, recorder.Header())
	header.Del("Content-Length")
	resp.WriteHeader(recorder.status)
	if _, err := resp.Write(body); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

// inspectOutput returns the body to send, or a violation when the response must be replaced.
func (f *GuardFilter) inspectOutput(ctx context.Context, path string, recorder *bufferedWriter) ([]byte, *guardrails.Violation) {
	body := recorder.body.Bytes()

	if recorder.status != http.StatusOK || !strings.Contains(recorder.Header().Get("Content-Type"), "json") {
		return body, nil
	}

	var payload map[string]any
	if err := decodeJSON(body, &payload); err != nil || payload == nil {
		f.logger.Warn().Err(err).Str("path", path).Msg("Unable to decode response, skipping output validation")
		return body, nil
	}

	content, replace, ok := extractContent(payload)
	if !ok || strings.TrimSpace(content) == "" {
		return body, nil
	}

	if isQueryResult(payload, content) {
		if !json.Valid([]byte(content)) {
			f.logger.Warn().Str("path", path).Msg("Query result is not valid JSON")
			f.publish(ctx, audit.NewEvent(guardrails.DirectionOutput, path, audit.OutcomeJSONInvalid))
		}
		return body, nil
	}

	report := f.guard.ValidateOutput(ctx, content)
	f.publishReport(ctx, guardrails.DirectionOutput, path, report)

	if report.Blocked() {
		return nil, report.Violation
	}

	text := report.Text
	truncated := false
	if f.maxOutputLength > 0 && utf8.RuneCountInString(text) > f.maxOutputLength {
		text = string([]rune(text)[:f.maxOutputLength]) + truncatedSuffix
		truncated = true
		f.publish(ctx, audit.NewEvent(guardrails.DirectionOutput, path, audit.OutcomeTruncated))
	}

	if !report.Modified() && !truncated {
		return body, nil
	}

	replace(text)
	rewritten, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn().Err(err).Str("path", path).Msg("Failed to rewrite response, forwarding original")
		return body, nil
	}
	return rewritten, nil
}

// processStream forwards the stream untouched and validates the accumulated
// text once the handler is done. The client has already received it, so a
// violation is only logged and audited.
func (f *GuardFilter) processStream(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	original := resp.ResponseWriter
	tee := newTeeWriter(original)
	resp.ResponseWriter = tee
	defer func() { resp.ResponseWriter = original }()

	chain.ProcessFilter(req, resp)

	resp.ResponseWriter = original

	text := extractSSEText(tee.Captured())
	if utf8.RuneCountInString(strings.TrimSpace(text)) <= f.streamMinLength {
		return
	}

	path := req.Request.URL.Path
	report := f.guard.ValidateOutput(req.Request.Context(), text)
	f.publishReport(req.Request.Context(), DirectionStream, path, report)

	if report.Blocked() {
		f.logger.Warn().
			Str("path", path).
			Str("violation_type", string(report.Violation.Type)).
			Str("validator", report.Violation.Validator).
			Msg("Streamed output violated guardrails after delivery")
	}
}

func (f *GuardFilter) reject(ctx context.Context, resp *restful.Response, direction string, path string, violationType guardrails.ViolationType) {
	message := f.guard.Messages().ForViolation(violationType)

	event := audit.NewEvent(direction, path, audit.OutcomeBlocked)
	event.ViolationType = string(violationType)
	event.Message = message
	f.publish(ctx, event)

	writeViolation(resp, violationType, message)
}

func (f *GuardFilter) publishReport(ctx context.Context, direction string, path string, report guardrails.Report) {
	for _, name := range report.FailedOpen {
		event := audit.NewEvent(direction, path, audit.OutcomeFailedOpen)
		event.Validator = name
		f.publish(ctx, event)
	}
	for _, name := range report.Filtered {
		event := audit.NewEvent(direction, path, audit.OutcomeFiltered)
		event.Validator = name
		f.publish(ctx, event)
	}
	if v := report.Violation; v != nil {
		event := audit.NewEvent(direction, path, audit.OutcomeBlocked)
		event.Validator = v.Validator
		event.ViolationType = string(v.Type)
		event.Message = v.Message
		event.Detail = v.Detail
		f.publish(ctx, event)
	}
}

func (f *GuardFilter) publish(ctx context.Context, event audit.Event) {
	if err := f.sink.Publish(ctx, event); err != nil {
		f.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to publish guard event")
	}
}

// writeViolation always answers with JSON, whatever the route produces.
func writeViolation(resp *restful.Response, violationType guardrails.ViolationType, message string) {
	resp.Header().Set(restful.HEADER_ContentType, restful.MIME_JSON)
	resp.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(resp).Encode(guardrails.NewErrorBody(message, violationType))
}

func decodeJSON(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}

// extractContent finds the text to validate in a response payload: the
// result field, or else the last ai message of conversation_history. replace
// writes a new value back into the payload.
func extractContent(payload map[string]any) (string, func(string), bool) {
	if result, ok := payload["result"].(string); ok {
		return result, func(text string) { payload["result"] = text }, true
	}

	history, ok := payload["conversation_history"].([]any)
	if !ok {
		return "", nil, false
	}

	for i := len(history) - 1; i >= 0; i-- {
		message, ok := history[i].(map[string]any)
		if !ok || message["type"] != "ai" {
			continue
		}
		content, ok := message["content"].(string)
		if !ok {
			return "", nil, false
		}
		return content, func(text string) { message["content"] = text }, true
	}

	return "", nil, false
}

// isQueryResult reports whether content is raw documents returned by a database query.
func isQueryResult(payload map[string]any, content string) bool {
	saved, _ := payload["data_saved"].(bool)
	if saved {
		return false
	}

	count, ok := payload["document_count"].(json.Number)
	if !ok {
		return false
	}
	n, err := count.Int64()
	if err != nil || n <= 0 {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(content), "[")
}

// extractSSEText concatenates the text of every chunk event in an SSE stream.
func extractSSEText(stream []byte) string {
	normalized := strings.ReplaceAll(string(stream), "\r\n", "\n")

	var sb strings.Builder
	for _, block := range strings.Split(normalized, "\n\n") {
		var event string
		var data []string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
		if event != "chunk" || len(data) == 0 {
			continue
		}

		var chunk struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &chunk); err == nil {
			sb.WriteString(chunk.Text)
		}
	}
	return sb.String()
}
