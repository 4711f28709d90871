package llm

type LLMRequest struct {
	Prompt        string
	SystemPrompt  string
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

type LLMResponse struct {
	Content    string
	StopReason string
}

// StreamCallback receives every text delta produced by a streaming call.
// Returning an error aborts the stream.
type StreamCallback func(chunk string) error
