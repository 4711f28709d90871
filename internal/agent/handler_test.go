package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
	"go.uber.org/mock/gomock"
)

type stubGuard struct {
	status guardrails.Status
}

func (g stubGuard) Status() guardrails.Status {
	return g.status
}

func setupTestAPI(t *testing.T) (*restful.Container, serviceFixture) {
	t.Helper()
	f := newServiceFixture(t)

	guard := stubGuard{status: guardrails.Status{
		Enabled:          true,
		InputValidators:  []string{"injection", "pii"},
		OutputValidators: []string{"toxicity"},
		ProtectedEndpoints: []config.EndpointConfig{
			{Path: "/query", Input: true, Output: true},
		},
	}}

	container := restful.NewContainer()
	container.Filter(middleware.RecoverPanic)
	RegisterRoutes(container, NewHandler(f.service, guard, "users"))
	return container, f
}

func doRequest(container *restful.Container, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	container.ServeHTTP(recorder, req)
	return recorder
}

func TestAPI_Query(t *testing.T) {
	container, f := setupTestAPI(t)
	f.expectSchema()
	f.llm.EXPECT().
		InvokeModelWithRetry(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "Hello!"}, nil)

	recorder := doRequest(container, http.MethodPost, "/query", `{"query": "hello", "session_id": "thread_api"}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", recorder.Code, recorder.Body.String())
	}

	var response QueryResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.SessionID != "thread_api" || response.Result != "Hello!" {
		t.Errorf("Unexpected response %+v", response)
	}
}

func TestAPI_Query_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details string
	}{
		{name: "malformed json", body: `{"query": `},
		{name: "empty query", body: `{"query": ""}`, details: "query cannot be empty"},
		{name: "invalid session", body: `{"query": "x", "session_id": "a b"}`, details: "invalid session id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, _ := setupTestAPI(t)

			recorder := doRequest(container, http.MethodPost, "/query", tt.body)

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", recorder.Code)
			}
			var response middleware.ErrorResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if response.Code != http.StatusBadRequest {
				t.Errorf("Expected code 400, got %d", response.Code)
			}
			if tt.details != "" && response.Details != tt.details {
				t.Errorf("Expected details %q, got %q", tt.details, response.Details)
			}
		})
	}
}

func TestAPI_QueryStream(t *testing.T) {
	container, f := setupTestAPI(t)
	f.expectSchema()
	f.llm.EXPECT().Model().Return("claude-test")
	f.llm.EXPECT().
		InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ llm.LLMRequest, callback llm.StreamCallback) (*llm.LLMResponse, error) {
			_ = callback("chunk-1")
			return &llm.LLMResponse{Content: "chunk-1", StopReason: "end_turn"}, nil
		})

	req := httptest.NewRequest(http.MethodPost, "/query/stream", strings.NewReader(`{"query": "hi", "session_id": "thread_sse"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	recorder := httptest.NewRecorder()
	container.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected event stream content type, got %q", ct)
	}
	body := recorder.Body.String()
	for _, event := range []string{"event: start", "event: chunk", "event: done"} {
		if !strings.Contains(body, event) {
			t.Errorf("Missing %q in %q", event, body)
		}
	}
}

func TestAPI_HistoryAndClear(t *testing.T) {
	container, _ := setupTestAPI(t)

	recorder := doRequest(container, http.MethodGet, "/conversation/thread_none/history", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", recorder.Code)
	}
	var history HistoryResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &history); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if history.ThreadID != "thread_none" || history.TotalMessages != 0 {
		t.Errorf("Unexpected history %+v", history)
	}

	recorder = doRequest(container, http.MethodDelete, "/conversation/thread_none", "")
	var cleared ClearResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if cleared.Status != "thread_not_found" {
		t.Errorf("Expected thread_not_found, got %s", cleared.Status)
	}

	recorder = doRequest(container, http.MethodGet, "/conversation/bad.id/history", "")
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid thread id, got %d", recorder.Code)
	}
}

func TestAPI_Download(t *testing.T) {
	container, f := setupTestAPI(t)

	recorder := doRequest(container, http.MethodGet, "/download/thread_dl", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", recorder.Code)
	}

	if _, err := f.results.Save("thread_dl", []map[string]any{{"name": "Alice"}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	recorder = doRequest(container, http.MethodGet, "/download/thread_dl", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"Alice"`) {
		t.Errorf("Unexpected file content %q", recorder.Body.String())
	}
	if cd := recorder.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}
}

func TestAPI_GuardrailsStatusAndInfo(t *testing.T) {
	container, _ := setupTestAPI(t)

	recorder := doRequest(container, http.MethodGet, "/guardrails/status", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", recorder.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status["guardrails_active"] != true {
		t.Errorf("Expected guardrails_active, got %v", status["guardrails_active"])
	}
	if validators, _ := status["input_validators"].([]any); len(validators) != 2 {
		t.Errorf("Expected 2 input validators, got %v", status["input_validators"])
	}

	recorder = doRequest(container, http.MethodGet, "/", "")
	var info InfoResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if info.Version != Version || info.Endpoints["query"] != "POST /query" {
		t.Errorf("Unexpected info %+v", info)
	}
}
