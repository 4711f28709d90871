package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
)

const MaxQueryLength = 4000

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return sessionIDPattern.MatchString(fl.Field().String())
	})
	return v
}

type QueryRequest struct {
	Query      string `json:"query" validate:"required,max=4000" description:"Natural language request"`
	SessionID  string `json:"session_id,omitempty" validate:"omitempty,session_id" description:"Conversation thread id (generated when missing)"`
	Collection string `json:"collection,omitempty" validate:"omitempty,max=120,excludesall=$" description:"MongoDB collection (default collection when missing)"`
}

func (q *QueryRequest) SetDefaults(defaultCollection string) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Collection == "" {
		q.Collection = defaultCollection
	}
}

// Validate maps struct tag failures to the middleware sentinel errors.
func (q *QueryRequest) Validate() error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	first := fieldErrors[0]
	switch {
	case first.Field() == "Query" && first.Tag() == "required":
		return middleware.ErrEmptyQuery
	case first.Field() == "Query" && first.Tag() == "max":
		return fmt.Errorf("%w: limit is %d characters", middleware.ErrQueryTooLong, MaxQueryLength)
	case first.Field() == "SessionID":
		return middleware.ErrInvalidSessionID
	default:
		return fmt.Errorf("invalid %s: failed on %s", strings.ToLower(first.Field()), first.Tag())
	}
}

// ValidSessionID reports whether id is safe to use as a thread id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

type QueryResponse struct {
	SessionID     string    `json:"session_id" description:"Conversation thread id"`
	Result        string    `json:"result" description:"Answer text or serialized documents"`
	DataSaved     bool      `json:"data_saved" description:"True when the documents were saved to a file"`
	FilePath      string    `json:"file_path,omitempty" description:"Saved file when data_saved is true"`
	DocumentCount int       `json:"document_count" description:"Number of documents found"`
	CreatedAt     time.Time `json:"created_at" description:"Execution time (UTC)"`
}

type HistoryMessage struct {
	Type       string `json:"type" description:"human or ai"`
	Content    string `json:"content" description:"Message content, truncated to 300 characters"`
	FullLength int    `json:"full_length" description:"Length of the untruncated content"`
}

type HistoryResponse struct {
	ThreadID            string           `json:"thread_id"`
	TotalMessages       int              `json:"total_messages"`
	ConversationHistory []HistoryMessage `json:"conversation_history"`
	MemoryType          string           `json:"memory_type"`
	GuardrailsProtected bool             `json:"guardrails_protected"`
}

type ConversationsResponse struct {
	ActiveThreads  []string `json:"active_threads"`
	TotalCount     int      `json:"total_count"`
	MemoryApproach string   `json:"memory_approach"`
}

type ClearResponse struct {
	ThreadID      string `json:"thread_id"`
	MemoryCleared bool   `json:"memory_cleared"`
	Status        string `json:"status" description:"success or thread_not_found"`
	Message       string `json:"message"`
}

type MemoryInfo struct {
	Type                string   `json:"type"`
	ActiveConversations int      `json:"active_conversations"`
	Threads             []string `json:"threads"`
}

type HealthResponse struct {
	Status    string            `json:"status" description:"healthy or degraded"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Memory    MemoryInfo        `json:"memory"`
	Config    map[string]string `json:"config"`
}

type GuardrailsStatusResponse struct {
	GuardrailsActive bool `json:"guardrails_active"`
	guardrails.Status
}

type InfoResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

type SSEEvent struct {
	Event string `json:"-"`
	Data  any    `json:"-"`
}

type StreamStartEvent struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

type StreamChunkEvent struct {
	Text string `json:"text"`
}

type StreamDoneEvent struct {
	StopReason string `json:"stop_reason"`
}

type StreamErrorEvent struct {
	Error string `json:"error"`
}

func (e SSEEvent) Format() (string, error) {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Event, string(jsonData)), nil
}
