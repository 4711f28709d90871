package database

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var runIntegration = flag.Bool("integration", false, "Run integration tests against a real MongoDB")

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestParseQuery(t *testing.T) {
	m := &MongoDB{cfg: Config{MaxResults: 100}}

	tests := []struct {
		name     string
		query    string
		wantErr  bool
		filter   bson.D
		limit    int64
		wantSort bool
		wantProj bool
	}{
		{
			name:   "plain filter",
			query:  `{"status": "active"}`,
			filter: bson.D{{Key: "status", Value: "active"}},
			limit:  100,
		},
		{
			name:     "sort and limit lifted out of filter",
			query:    `{"age": {"$gt": 30}, "$sort": {"age": -1}, "$limit": 5}`,
			filter:   bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int32(30)}}}},
			limit:    5,
			wantSort: true,
		},
		{
			name:   "limit above maximum is capped",
			query:  `{"$limit": 5000}`,
			filter: bson.D{},
			limit:  100,
		},
		{
			name:     "projection",
			query:    `{"$projection": {"name": 1}}`,
			filter:   bson.D{},
			limit:    100,
			wantProj: true,
		},
		{
			name:   "group operator kept in filter",
			query:  `{"$group": "x"}`,
			filter: bson.D{{Key: "$group", Value: "x"}},
			limit:  100,
		},
		{name: "fractional limit", query: `{"$limit": 2.5}`, wantErr: true},
		{name: "negative limit", query: `{"$limit": -1}`, wantErr: true},
		{name: "not json", query: `find everything`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, opts, err := m.parseQuery(tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidQuery))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.filter, filter)
			require.NotNil(t, opts.Limit)
			assert.Equal(t, tt.limit, *opts.Limit)
			assert.Equal(t, tt.wantSort, opts.Sort != nil)
			assert.Equal(t, tt.wantProj, opts.Projection != nil)
		})
	}
}

func TestNormalizeDocument(t *testing.T) {
	id := primitive.NewObjectID()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":     id,
		"created": primitive.NewDateTimeFromTime(created),
		"tags":    bson.A{"a", id},
		"address": bson.M{"city": "Rome"},
		"ordered": bson.D{{Key: "k", Value: int32(1)}},
		"count":   int32(3),
	}

	got := normalizeDocument(doc)

	assert.Equal(t, id.Hex(), got["_id"])
	assert.Equal(t, "2024-03-01T12:00:00Z", got["created"])
	assert.Equal(t, []any{"a", id.Hex()}, got["tags"])
	assert.Equal(t, map[string]any{"city": "Rome"}, got["address"])
	assert.Equal(t, map[string]any{"k": int32(1)}, got["ordered"])
	assert.Equal(t, int32(3), got["count"])
}

func TestInferSchema(t *testing.T) {
	docs := []bson.M{
		{"_id": primitive.NewObjectID(), "name": "Alice", "age": int32(30)},
		{"_id": primitive.NewObjectID(), "name": "Bob", "tags": bson.A{"x"}},
	}

	schema := inferSchema("users", docs)

	assert.Equal(t, 2, schema.Sampled)
	assert.Equal(t, FieldInfo{Type: "string", Sample: "Alice", FoundIn: 2}, schema.Fields["name"])
	assert.Equal(t, FieldInfo{Type: "int", Sample: int32(30), FoundIn: 1}, schema.Fields["age"])
	assert.Equal(t, "array", schema.Fields["tags"].Type)
	assert.Equal(t, "[1 items]", schema.Fields["tags"].Sample)
	assert.Equal(t, "objectId", schema.Fields["_id"].Type)

	text := schema.PromptText()
	assert.Contains(t, text, `Collection "users" (sampled 2 documents)`)
	assert.Contains(t, text, "- name (string), e.g. Alice")
	assert.Less(t, strings.Index(text, "- _id"), strings.Index(text, "- age"))
}

func TestPromptText_Empty(t *testing.T) {
	assert.Empty(t, inferSchema("empty", nil).PromptText())
}

func TestMongoDB_Integration(t *testing.T) {
	if !*runIntegration {
		t.Skip("Skipping integration test. Use -integration flag to run")
	}

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	db, err := Connect(ctx, Config{URI: uri, Database: "guard_agent_test"}, testLogger())
	require.NoError(t, err)
	defer db.Close(context.Background())

	coll := db.db.Collection("people")
	defer coll.Drop(context.Background())

	_, err = coll.InsertMany(ctx, []any{
		bson.M{"name": "Alice", "age": 30},
		bson.M{"name": "Bob", "age": 25},
		bson.M{"name": "Carol", "age": 41},
	})
	require.NoError(t, err)

	docs, err := db.ExecuteQuery(ctx, "people", `{"age": {"$gte": 30}, "$sort": {"age": -1}, "$limit": 1}`)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Carol", docs[0]["name"])
	assert.IsType(t, "", docs[0]["_id"])

	schema, err := db.CollectionSchema(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, 3, schema.Fields["name"].FoundIn)

	require.NoError(t, db.Ping(ctx))
}
