package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const DefaultMaxResults = 1000

var ErrInvalidQuery = errors.New("invalid query")

type Config struct {
	URI          string
	Database     string
	QueryTimeout time.Duration
	MaxResults   int64
}

// MongoDB runs read-only queries produced by the language model.
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
	logger *zerolog.Logger
}

func Connect(ctx context.Context, cfg Config, logger *zerolog.Logger) (*MongoDB, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second).
		SetAppName("guard-agent")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("MongoDB connected")

	return &MongoDB{
		client: client,
		db:     client.Database(cfg.Database),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (m *MongoDB) Name() string {
	return m.cfg.Database
}

// ExecuteQuery parses query as relaxed extended JSON and runs it as a find on
// collection. Top-level $sort, $limit and $projection keys become find options;
// everything else is the filter. Results never exceed the configured maximum.
func (m *MongoDB) ExecuteQuery(ctx context.Context, collection string, query string) ([]map[string]any, error) {
	filter, opts, err := m.parseQuery(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()

	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find on %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var documents []map[string]any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		documents = append(documents, normalizeDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}

	m.logger.Info().
		Str("collection", collection).
		Int("documents", len(documents)).
		Msg("Query executed")

	return documents, nil
}

func (m *MongoDB) parseQuery(query string) (bson.D, *options.FindOptions, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	filter, sort, projection, limit, err := splitQuery(doc)
	if err != nil {
		return nil, nil, err
	}

	opts := options.Find().SetLimit(m.cfg.MaxResults)
	if limit > 0 && limit < m.cfg.MaxResults {
		opts.SetLimit(limit)
	}
	if sort != nil {
		opts.SetSort(sort)
	}
	if projection != nil {
		opts.SetProjection(projection)
	}

	return filter, opts, nil
}

// splitQuery separates the find options from the filter. limit is zero when absent.
func splitQuery(doc bson.D) (filter bson.D, sort any, projection any, limit int64, err error) {
	filter = bson.D{}

	for _, elem := range doc {
		switch elem.Key {
		case "$sort":
			sort = elem.Value
		case "$projection":
			projection = elem.Value
		case "$limit":
			n, ok := toInt64(elem.Value)
			if !ok || n < 0 {
				return nil, nil, nil, 0, fmt.Errorf("%w: $limit must be a non-negative integer", ErrInvalidQuery)
			}
			limit = n
		default:
			filter = append(filter, elem)
		}
	}

	return filter, sort, projection, limit, nil
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

// normalizeDocument converts BSON specific values into JSON friendly ones.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return fmt.Sprintf("<binary %d bytes>", len(v.Data))
	case primitive.Regex:
		return v.String()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC().Format(time.RFC3339)
	case bson.M:
		return normalizeDocument(v)
	case bson.D:
		return normalizeDocument(v.Map())
	case bson.A:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = normalizeValue(item)
		}
		return items
	default:
		return v
	}
}

func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
