package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

var ErrSessionNotFound = errors.New("conversation session not found")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionID returns an id of the form thread_<8 hex chars>.
func NewSessionID() string {
	return "thread_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
