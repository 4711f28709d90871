package agent

import (
	"context"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/database"
)

//go:generate mockgen -destination=mocks/mock_database.go -package=mocks . Database

// Database is the document store the service runs generated queries against.
type Database interface {
	ExecuteQuery(ctx context.Context, collection string, query string) ([]map[string]any, error)
	CollectionSchema(ctx context.Context, collection string) (database.Schema, error)
	Ping(ctx context.Context) error
	Name() string
}
