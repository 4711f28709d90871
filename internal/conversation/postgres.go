package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE" envDefault:"guard_agent"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_messages (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversation_messages_conversation_idx
	ON conversation_messages (conversation_id, id);
`

// PostgresStore persists conversations in two tables so they survive restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects with connString and creates the tables if needed.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create conversation tables: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Kind() string { return "postgres" }

func (s *PostgresStore) CreateSession(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	id := NewSessionID()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $2)`,
		id, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{ID: id, CreatedAt: now}, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, sessionID string, message Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $2)
			ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
			sessionID, message.Timestamp)
		if err != nil {
			return fmt.Errorf("upsert session %s: %w", sessionID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_messages (conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4)`,
			sessionID, message.Role, message.Content, message.Timestamp)
		if err != nil {
			return fmt.Errorf("insert message into %s: %w", sessionID, err)
		}
		return nil
	})
}

type messageRow struct {
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *PostgresStore) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	conv := &Conversation{ID: sessionID}

	err := s.pool.QueryRow(ctx,
		`SELECT created_at, updated_at FROM conversations WHERE id = $1`,
		sessionID).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", sessionID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at FROM conversation_messages
		WHERE conversation_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages of %s: %w", sessionID, err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, fmt.Errorf("scan messages of %s: %w", sessionID, err)
	}

	for _, row := range messages {
		conv.Messages = append(conv.Messages, Message{Role: row.Role, Content: row.Content, Timestamp: row.CreatedAt})
	}
	return conv, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM conversations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan session ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
