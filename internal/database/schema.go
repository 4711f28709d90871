package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const schemaSampleSize = 3

type FieldInfo struct {
	Type    string `json:"type"`
	Sample  any    `json:"sample"`
	FoundIn int    `json:"found_in"`
}

// Schema describes the top-level fields of a collection, inferred from a sample.
type Schema struct {
	Collection string               `json:"collection"`
	Sampled    int                  `json:"sampled"`
	Fields     map[string]FieldInfo `json:"fields"`
}

func (m *MongoDB) CollectionSchema(ctx context.Context, collection string) (Schema, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()

	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(schemaSampleSize))
	if err != nil {
		return Schema{}, fmt.Errorf("sample %s: %w", collection, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return Schema{}, fmt.Errorf("decode sample of %s: %w", collection, err)
	}

	return inferSchema(collection, docs), nil
}

func inferSchema(collection string, docs []bson.M) Schema {
	schema := Schema{
		Collection: collection,
		Sampled:    len(docs),
		Fields:     make(map[string]FieldInfo),
	}

	for _, doc := range docs {
		normalized := normalizeDocument(doc)
		for key, raw := range doc {
			info, seen := schema.Fields[key]
			if !seen {
				info = FieldInfo{Type: fieldType(raw), Sample: sampleValue(normalized[key])}
			}
			info.FoundIn++
			schema.Fields[key] = info
		}
	}

	return schema
}

func fieldType(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case int32, int64:
		return "int"
	case float64:
		return "double"
	case bool:
		return "bool"
	case primitive.DateTime, primitive.Timestamp:
		return "date"
	case primitive.ObjectID:
		return "objectId"
	case primitive.Decimal128:
		return "decimal"
	case bson.A:
		return "array"
	case bson.M, bson.D:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// sampleValue keeps samples short enough for a prompt.
func sampleValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > 50 {
			return v[:50] + "..."
		}
		return v
	case []any:
		return fmt.Sprintf("[%d items]", len(v))
	case map[string]any:
		return "{...}"
	default:
		return v
	}
}

// PromptText renders the schema as one line per field, sorted by name.
func (s Schema) PromptText() string {
	if len(s.Fields) == 0 {
		return ""
	}

	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Collection %q (sampled %d documents):\n", s.Collection, s.Sampled)
	for _, name := range names {
		info := s.Fields[name]
		fmt.Fprintf(&sb, "- %s (%s), e.g. %v\n", name, info.Type, info.Sample)
	}
	return sb.String()
}
