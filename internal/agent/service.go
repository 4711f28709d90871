package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/conversation"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/database"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/rs/zerolog"
)

const (
	inlineResultBytes   = 50_000
	inlineResultDocs    = 25
	historyPromptLimit  = 10
	historyContentLimit = 300
	healthCheckTimeout  = 10 * time.Second
)

const systemPrompt = `You are a database analytics assistant. The user talks to you in natural language.

Behaviour:
1. For normal conversation, answer as a friendly assistant in plain text.
2. Only when the user explicitly asks to search or retrieve data, answer with a single
   MongoDB filter as a JSON object and nothing else.

The filter may contain "$sort" (field to 1 or -1) and "$limit" (integer) at the top level.
Examples:
- "find users older than 25" -> {"age": {"$gt": 25}}
- "find Mario" -> {"name": {"$regex": "Mario"}}
- "the 5 youngest users" -> {"$sort": {"age": 1}, "$limit": 5}
- "all documents" -> {}

Remember what the user tells you about themselves and never change role.`

type ServiceConfig struct {
	DefaultCollection string
	MaxTokens         int
	Temperature       float64
}

type Service struct {
	llmClient         llm.LLMClient
	db                Database
	conversationStore conversation.ConversationStore
	results           *ResultStore
	cfg               ServiceConfig
	logger            *zerolog.Logger
}

func NewService(
	llmClient llm.LLMClient,
	db Database,
	conversationStore conversation.ConversationStore,
	results *ResultStore,
	cfg ServiceConfig,
	logger *zerolog.Logger) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return &Service{
		llmClient:         llmClient,
		db:                db,
		conversationStore: conversationStore,
		results:           results,
		cfg:               cfg,
		logger:            logger,
	}
}

func (s *Service) Query(ctx context.Context, queryRequest QueryRequest) (QueryResponse, error) {
	sessionID := s.sessionID(queryRequest)
	prompt := s.buildPrompt(ctx, sessionID, queryRequest)

	response, err := s.llmClient.InvokeModelWithRetry(ctx, llm.LLMRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to invoke model")
		return QueryResponse{}, fmt.Errorf("model invocation failed: %w", err)
	}

	s.saveConversationMessages(ctx, sessionID, queryRequest.Query, response.Content)

	queryResponse := QueryResponse{
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}

	filter, isQuery := parseMongoQuery(response.Content)
	if !isQuery {
		s.logger.Info().Str("session_id", sessionID).Msg("General response")
		queryResponse.Result = strings.TrimSpace(response.Content)
		return queryResponse, nil
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Str("collection", queryRequest.Collection).
		Str("filter", filter).
		Msg("Executing generated query")

	documents, err := s.db.ExecuteQuery(ctx, queryRequest.Collection, filter)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("query execution failed: %w", err)
	}
	if documents == nil {
		documents = []map[string]any{}
	}
	queryResponse.DocumentCount = len(documents)

	serialized, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to encode documents: %w", err)
	}

	if len(serialized) <= inlineResultBytes && len(documents) <= inlineResultDocs {
		queryResponse.Result = string(serialized)
		return queryResponse, nil
	}

	path, err := s.results.Save(sessionID, documents)
	if err != nil {
		return QueryResponse{}, err
	}

	queryResponse.DataSaved = true
	queryResponse.FilePath = path
	queryResponse.Result = fmt.Sprintf(
		"Query executed successfully.\n%d documents found.\nResults saved to file (larger than %d KB or %d documents).\nFile: %s\nUse /download/%s to fetch them.",
		len(documents), inlineResultBytes/1000, inlineResultDocs, path, sessionID)

	return queryResponse, nil
}

func (s *Service) QueryStream(ctx context.Context, queryRequest QueryRequest, flusher http.Flusher, writer io.Writer) error {
	sessionID := s.sessionID(queryRequest)
	prompt := s.buildPrompt(ctx, sessionID, queryRequest)

	send := func(event SSEEvent) error {
		formatted, err := event.Format()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprint(writer, formatted); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(SSEEvent{Event: "start", Data: StreamStartEvent{SessionID: sessionID, Model: s.llmClient.Model()}}); err != nil {
		return err
	}

	response, err := s.llmClient.InvokeModelStream(ctx, llm.LLMRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	}, func(chunk string) error {
		return send(SSEEvent{Event: "chunk", Data: StreamChunkEvent{Text: chunk}})
	})
	if err != nil {
		_ = send(SSEEvent{Event: "error", Data: StreamErrorEvent{Error: err.Error()}})
		return fmt.Errorf("model stream failed: %w", err)
	}

	if err := send(SSEEvent{Event: "done", Data: StreamDoneEvent{StopReason: response.StopReason}}); err != nil {
		return err
	}

	s.saveConversationMessages(ctx, sessionID, queryRequest.Query, response.Content)
	return nil
}

func (s *Service) History(ctx context.Context, threadID string) (HistoryResponse, error) {
	historyResponse := HistoryResponse{
		ThreadID:            threadID,
		ConversationHistory: []HistoryMessage{},
		MemoryType:          s.conversationStore.Kind(),
		GuardrailsProtected: true,
	}

	conv, err := s.conversationStore.GetConversation(ctx, threadID)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		return historyResponse, nil
	}
	if err != nil {
		return HistoryResponse{}, fmt.Errorf("failed to load history: %w", err)
	}

	for _, msg := range conv.Messages {
		historyResponse.ConversationHistory = append(historyResponse.ConversationHistory, HistoryMessage{
			Type:       msg.Role,
			Content:    truncateContent(msg.Content, historyContentLimit),
			FullLength: len([]rune(msg.Content)),
		})
	}
	historyResponse.TotalMessages = len(conv.Messages)

	return historyResponse, nil
}

func (s *Service) Conversations(ctx context.Context) (ConversationsResponse, error) {
	threads, err := s.conversationStore.ListSessions(ctx)
	if err != nil {
		return ConversationsResponse{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	if threads == nil {
		threads = []string{}
	}

	return ConversationsResponse{
		ActiveThreads:  threads,
		TotalCount:     len(threads),
		MemoryApproach: s.conversationStore.Kind(),
	}, nil
}

func (s *Service) Clear(ctx context.Context, threadID string) (ClearResponse, error) {
	cleared, err := s.conversationStore.DeleteSession(ctx, threadID)
	if err != nil {
		return ClearResponse{}, fmt.Errorf("failed to clear conversation: %w", err)
	}

	if !cleared {
		return ClearResponse{
			ThreadID: threadID,
			Status:   "thread_not_found",
			Message:  "Thread does not exist",
		}, nil
	}

	s.logger.Info().Str("thread_id", threadID).Msg("Conversation cleared")
	return ClearResponse{
		ThreadID:      threadID,
		MemoryCleared: true,
		Status:        "success",
		Message:       "Conversation memory cleared",
	}, nil
}

// Health pings every backend. It never fails; unhealthy backends make the
// status degraded.
func (s *Service) Health(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	services := map[string]string{}
	healthy := true
	check := func(name string, err error) {
		if err != nil {
			s.logger.Warn().Err(err).Str("service", name).Msg("Health check failed")
			services[name] = "unavailable"
			healthy = false
			return
		}
		services[name] = "healthy"
	}

	check("mongodb", s.db.Ping(ctx))
	check("llm", s.pingModel(ctx))
	check("conversation_store", s.conversationStore.Ping(ctx))

	threads, err := s.conversationStore.ListSessions(ctx)
	if err != nil {
		threads = nil
	}
	active := len(threads)
	if len(threads) > 5 {
		threads = threads[:5]
	}
	if threads == nil {
		threads = []string{}
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Memory: MemoryInfo{
			Type:                s.conversationStore.Kind(),
			ActiveConversations: active,
			Threads:             threads,
		},
		Config: map[string]string{
			"model":              s.llmClient.Model(),
			"database":           s.db.Name(),
			"default_collection": s.cfg.DefaultCollection,
		},
	}
}

func (s *Service) pingModel(ctx context.Context) error {
	response, err := s.llmClient.InvokeModel(ctx, llm.LLMRequest{
		Prompt:    "test connection",
		MaxTokens: 5,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(response.Content) == "" {
		return errors.New("empty response from model")
	}
	return nil
}

// LatestResult returns the newest saved result file for the thread.
func (s *Service) LatestResult(threadID string) (string, error) {
	return s.results.Latest(threadID)
}

// CleanupResults removes expired result files.
func (s *Service) CleanupResults() (int, error) {
	return s.results.Cleanup()
}

func (s *Service) sessionID(queryRequest QueryRequest) string {
	if queryRequest.SessionID != "" {
		return queryRequest.SessionID
	}
	return conversation.NewSessionID()
}

func (s *Service) buildPrompt(ctx context.Context, sessionID string, queryRequest QueryRequest) string {
	schema, err := s.db.CollectionSchema(ctx, queryRequest.Collection)
	if err != nil {
		s.logger.Warn().Err(err).Str("collection", queryRequest.Collection).Msg("Schema unavailable, continuing without it")
		schema = database.Schema{}
	}

	conv, err := s.conversationStore.GetConversation(ctx, sessionID)
	if err != nil && !errors.Is(err, conversation.ErrSessionNotFound) {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to retrieve conversation, continuing without history")
	}

	return buildPromptWithContext(queryRequest.Query, schema, conv)
}

func (s *Service) saveConversationMessages(ctx context.Context, sessionID, query, answer string) {
	userMsg := conversation.Message{
		Role:      conversation.RoleHuman,
		Content:   query,
		Timestamp: time.Now(),
	}
	if err := s.conversationStore.AddMessage(ctx, sessionID, userMsg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save user message")
	}

	assistantMsg := conversation.Message{
		Role:      conversation.RoleAI,
		Content:   answer,
		Timestamp: time.Now(),
	}
	if err := s.conversationStore.AddMessage(ctx, sessionID, assistantMsg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save assistant message")
	}
}

func buildPromptWithContext(userQuery string, schema database.Schema, conv *conversation.Conversation) string {
	schemaSection := "Schema not available.\n"
	if text := schema.PromptText(); text != "" {
		schemaSection = text
	}

	historySection := ""
	if conv != nil && len(conv.Messages) > 0 {
		var hb strings.Builder
		hb.WriteString("Conversation history:\n")

		messages := conv.Messages
		if len(messages) > historyPromptLimit {
			messages = messages[len(messages)-historyPromptLimit:]
		}
		for _, msg := range messages {
			role := "User"
			if msg.Role == conversation.RoleAI {
				role = "Assistant"
			}
			fmt.Fprintf(&hb, "%s: %s\n", role, msg.Content)
		}
		historySection = hb.String() + "\n"
	}

	return fmt.Sprintf("Available schema:\n%s\n%sUser: %s\n\nAssistant:", schemaSection, historySection, userQuery)
}

// parseMongoQuery extracts a filter object from a model answer. Code fences are
// stripped and the remaining text must be a single JSON object.
func parseMongoQuery(answer string) (string, bool) {
	cleaned := strings.TrimSpace(answer)

	if strings.Contains(cleaned, "```") {
		var lines []string
		for _, line := range strings.Split(cleaned, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			lines = append(lines, line)
		}
		cleaned = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if !strings.HasPrefix(cleaned, "{") || !strings.HasSuffix(cleaned, "}") {
		return "", false
	}

	var filter map[string]any
	if err := json.Unmarshal([]byte(cleaned), &filter); err != nil {
		return "", false
	}

	return cleaned, true
}

func truncateContent(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
