package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// Client talks to a local Ollama server through langchaingo.
type Client struct {
	llm     *lcollama.LLM
	ModelID string
}

func NewClient(serverURL string, model string, timeout time.Duration) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("Ollama model is required")
	}

	ollamaLLM, err := lcollama.New(
		lcollama.WithServerURL(serverURL),
		lcollama.WithModel(model),
		lcollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create ollama client: %w", err)
	}

	return &Client{
		llm:     ollamaLLM,
		ModelID: model,
	}, nil
}

func (c *Client) Model() string {
	return c.ModelID
}

func buildMessages(request llm.LLMRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2)
	if request.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, request.SystemPrompt))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, request.Prompt))
}

func buildOptions(request llm.LLMRequest) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(request.Temperature)}
	if request.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(request.MaxTokens))
	}
	if len(request.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(request.StopSequences))
	}
	return opts
}

func (c *Client) InvokeModel(ctx context.Context, request llm.LLMRequest) (*llm.LLMResponse, error) {
	response, err := c.llm.GenerateContent(ctx, buildMessages(request), buildOptions(request)...)
	if err != nil {
		return nil, fmt.Errorf("unable to invoke ollama model. Error: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := response.Choices[0]
	return &llm.LLMResponse{
		Content:    choice.Content,
		StopReason: choice.StopReason,
	}, nil
}

// InvokeModelWithRetry makes a single attempt.
func (c *Client) InvokeModelWithRetry(ctx context.Context, request llm.LLMRequest) (*llm.LLMResponse, error) {
	return c.InvokeModel(ctx, request)
}

func (c *Client) InvokeModelStream(ctx context.Context, request llm.LLMRequest, callback llm.StreamCallback) (*llm.LLMResponse, error) {
	opts := buildOptions(request)
	opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if callback == nil || len(chunk) == 0 {
			return nil
		}
		return callback(string(chunk))
	}))

	response, err := c.llm.GenerateContent(ctx, buildMessages(request), opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama stream error: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := response.Choices[0]
	return &llm.LLMResponse{
		Content:    choice.Content,
		StopReason: choice.StopReason,
	}, nil
}
