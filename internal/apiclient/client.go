// Package apiclient is a small HTTP client for the guard agent API used by the
// console client.
package apiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/agent"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
)

// ViolationError is returned when the guard rejects a request.
type ViolationError struct {
	ViolationType string
	Message       string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.ViolationType, e.Message)
}

// APIError is any other non 2xx answer.
type APIError struct {
	StatusCode int
	Details    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Details)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Query(ctx context.Context, request agent.QueryRequest) (agent.QueryResponse, error) {
	var response agent.QueryResponse
	err := c.do(ctx, http.MethodPost, "/query", request, &response)
	return response, err
}

// QueryStream calls onChunk for every chunk event and returns the session id
// announced by the start event.
func (c *Client) QueryStream(ctx context.Context, request agent.QueryRequest, onChunk func(string)) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query/stream", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// streams outlive the regular timeout
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var sessionID, event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "start":
				var start agent.StreamStartEvent
				if err := json.Unmarshal(data, &start); err == nil {
					sessionID = start.SessionID
				}
			case "chunk":
				var chunk agent.StreamChunkEvent
				if err := json.Unmarshal(data, &chunk); err == nil {
					onChunk(chunk.Text)
				}
			case "error":
				var streamErr agent.StreamErrorEvent
				_ = json.Unmarshal(data, &streamErr)
				return sessionID, fmt.Errorf("stream error: %s", streamErr.Error)
			}
		}
	}

	return sessionID, scanner.Err()
}

func (c *Client) History(ctx context.Context, threadID string) (agent.HistoryResponse, error) {
	var response agent.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/conversation/"+url.PathEscape(threadID)+"/history", nil, &response)
	return response, err
}

func (c *Client) Conversations(ctx context.Context) (agent.ConversationsResponse, error) {
	var response agent.ConversationsResponse
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &response)
	return response, err
}

func (c *Client) Clear(ctx context.Context, threadID string) (agent.ClearResponse, error) {
	var response agent.ClearResponse
	err := c.do(ctx, http.MethodDelete, "/conversation/"+url.PathEscape(threadID), nil, &response)
	return response, err
}

func (c *Client) Health(ctx context.Context) (agent.HealthResponse, error) {
	var response agent.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &response)
	return response, err
}

func (c *Client) Status(ctx context.Context) (agent.GuardrailsStatusResponse, error) {
	var response agent.GuardrailsStatusResponse
	err := c.do(ctx, http.MethodGet, "/guardrails/status", nil, &response)
	return response, err
}

func (c *Client) do(ctx context.Context, method string, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode == http.StatusBadRequest {
		var violation guardrails.ErrorBody
		if err := json.Unmarshal(data, &violation); err == nil && violation.ViolationType != "" {
			return &ViolationError{ViolationType: string(violation.ViolationType), Message: violation.Message}
		}
	}

	var apiErr middleware.ErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Details != "" {
		return &APIError{StatusCode: resp.StatusCode, Details: apiErr.Details}
	}

	return &APIError{StatusCode: resp.StatusCode, Details: strings.TrimSpace(string(data))}
}

// IsViolation reports whether err is a guard rejection.
func IsViolation(err error) bool {
	var violation *ViolationError
	return errors.As(err, &violation)
}
