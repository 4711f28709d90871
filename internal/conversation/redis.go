package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metaSuffix     = ":meta"
	messagesSuffix = ":messages"
)

// RedisStore keeps each session as a meta hash and a message list, both
// expiring after ttl of inactivity.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "conversation:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Kind() string { return "redis" }

func (s *RedisStore) metaKey(id string) string     { return s.prefix + id + metaSuffix }
func (s *RedisStore) messagesKey(id string) string { return s.prefix + id + messagesSuffix }

func (s *RedisStore) CreateSession(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	id := NewSessionID()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(id), "created_at", now.Format(time.RFC3339Nano), "updated_at", now.Format(time.RFC3339Nano))
		if s.ttl > 0 {
			pipe.Expire(ctx, s.metaKey(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{ID: id, CreatedAt: now}, nil
}

func (s *RedisStore) AddMessage(ctx context.Context, sessionID string, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	stamp := message.Timestamp.UTC().Format(time.RFC3339Nano)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, s.metaKey(sessionID), "created_at", stamp)
		pipe.HSet(ctx, s.metaKey(sessionID), "updated_at", stamp)
		pipe.RPush(ctx, s.messagesKey(sessionID), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.metaKey(sessionID), s.ttl)
			pipe.Expire(ctx, s.messagesKey(sessionID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add message to %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	var metaCmd *redis.MapStringStringCmd
	var messagesCmd *redis.StringSliceCmd

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(sessionID))
		messagesCmd = pipe.LRange(ctx, s.messagesKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", sessionID, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, ErrSessionNotFound
	}

	conv := &Conversation{ID: sessionID}
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, meta["updated_at"])

	for _, raw := range messagesCmd.Val() {
		var message Message
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			return nil, fmt.Errorf("decode message in %s: %w", sessionID, err)
		}
		conv.Messages = append(conv.Messages, message)
	}

	return conv, nil
}

func (s *RedisStore) ListSessions(ctx context.Context) ([]string, error) {
	var ids []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*"+metaSuffix, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), metaSuffix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return ids, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Del(ctx, s.metaKey(sessionID), s.messagesKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
