package conversation

import "context"

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks . ConversationStore

// ConversationStore keeps the message history of each session.
type ConversationStore interface {
	CreateSession(ctx context.Context) (*Session, error)
	// AddMessage appends to the session, creating it when it does not exist.
	AddMessage(ctx context.Context, sessionID string, message Message) error
	GetConversation(ctx context.Context, sessionID string) (*Conversation, error)
	ListSessions(ctx context.Context) ([]string, error)
	// DeleteSession reports whether the session existed.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	Ping(ctx context.Context) error
	Kind() string
}
