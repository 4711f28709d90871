package bedrock

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"throttling", errors.New("ThrottlingException: slow down"), true},
		{"service unavailable", errors.New("ServiceUnavailableException"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"validation", errors.New("ValidationException: bad input"), false},
		{"access denied", errors.New("AccessDeniedException"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := time.Second

	for attempt := 0; attempt < 6; attempt++ {
		delay := calculateBackoff(attempt, initial, maxDelay)
		upper := time.Duration(float64(maxDelay) * 1.2)
		if delay <= 0 || delay > upper {
			t.Errorf("attempt %d: backoff %v out of range (0, %v]", attempt, delay, upper)
		}
	}

	// The jitter is bounded by 20%, so attempt 3 (800ms base) is never below attempt 0's ceiling.
	if calculateBackoff(3, initial, maxDelay) < 120*time.Millisecond {
		t.Error("expected backoff to grow with attempts")
	}
}

func TestBuildPayload(t *testing.T) {
	c := &Client{ModelID: "anthropic.claude-3-haiku"}

	body, err := c.buildPayload(llm.LLMRequest{
		Prompt:        "classify this",
		SystemPrompt:  "you are a classifier",
		Temperature:   0.1,
		StopSequences: []string{"\n\n"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload claudeMessageRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	if payload.AnthropicVersion != anthropicVersion {
		t.Errorf("expected version %s, got %s", anthropicVersion, payload.AnthropicVersion)
	}
	if payload.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", defaultMaxTokens, payload.MaxTokens)
	}
	if payload.System != "you are a classifier" {
		t.Errorf("unexpected system prompt %q", payload.System)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Role != "user" {
		t.Errorf("expected a single user message, got %+v", payload.Messages)
	}
}
