package conversation

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	order         []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *MemoryStore) Kind() string { return "memory" }

func (s *MemoryStore) CreateSession(_ context.Context) (*Session, error) {
	now := time.Now().UTC()
	id := NewSessionID()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[id] = &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	s.order = append(s.order, id)

	return &Session{ID: id, CreatedAt: now}, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, sessionID string, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		conv = &Conversation{ID: sessionID, CreatedAt: message.Timestamp}
		s.conversations[sessionID] = conv
		s.order = append(s.order, sessionID)
	}

	conv.Messages = append(conv.Messages, message)
	conv.UpdatedAt = message.Timestamp
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *conv
	copied.Messages = slices.Clone(conv.Messages)
	return &copied, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[sessionID]; !ok {
		return false, nil
	}

	delete(s.conversations, sessionID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == sessionID })
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
