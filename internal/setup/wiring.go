package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/agent"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/audit"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/conversation"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/database"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm/bedrock"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm/gpt"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm/ollama"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/redis"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

type Config struct {
	Port      string `env:"AGENT_API_PORT" envDefault:"8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	LLMProvider   string        `env:"DEFAULT_LLM_PROVIDER" envDefault:"bedrock"`
	AWSRegion     string        `env:"AWS_REGION" envDefault:"us-east-1"`
	ClaudeModelID string        `env:"CLAUDE_MODEL_ID"`
	OpenAIKey     string        `env:"OPEN_AI_KEY"`
	OpenAIModelID string        `env:"OPEN_AI_MODEL_ID" envDefault:"gpt-4o-mini"`
	OllamaURL     string        `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string        `env:"OLLAMA_MODEL" envDefault:"llama3.1:8b"`
	OllamaTimeout time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"60s"`
	MaxTokens     int           `env:"LLM_MAX_TOKENS" envDefault:"1000"`
	Temperature   float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`

	// Empty values reuse the main provider and model.
	ClassifierProvider string `env:"CLASSIFIER_PROVIDER"`
	ClassifierModelID  string `env:"CLASSIFIER_MODEL_ID"`

	MongoURI          string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string        `env:"MONGODB_DATABASE" envDefault:"analytics"`
	DefaultCollection string        `env:"MONGODB_COLLECTION" envDefault:"users"`
	MongoQueryTimeout time.Duration `env:"MONGODB_QUERY_TIMEOUT" envDefault:"30s"`

	ConversationStore string        `env:"CONVERSATION_STORE" envDefault:"memory"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL          time.Duration `env:"REDIS_TTL" envDefault:"30m"`
	RedisMaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"5"`

	PostgresDSN string                      `env:"POSTGRES_DSN"`
	Postgres    conversation.PostgresConfig `envPrefix:"POSTGRES_"`

	AuditEnabled bool   `env:"AUDIT_ENABLED" envDefault:"false"`
	AuditStream  string `env:"AUDIT_STREAM" envDefault:"guard-events"`
	AuditMaxLen  int64  `env:"AUDIT_MAX_LEN" envDefault:"10000"`

	ResultsDir string        `env:"RESULTS_DIR" envDefault:"temp_results"`
	ResultTTL  time.Duration `env:"RESULT_TTL" envDefault:"24h"`

	GuardrailsConfigPath string `env:"GUARDRAILS_CONFIG_PATH" envDefault:"configs/guardrails.yaml"`
}

func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ModelID() string {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIModelID
	case ProviderOllama:
		return c.OllamaModel
	default:
		return c.ClaudeModelID
	}
}

type Dependencies struct {
	Guard       *guardrails.Guard
	GuardConfig *config.GuardrailsConfig
	GuardFilter *middleware.GuardFilter
	Service     *agent.Service
	Handler     *agent.Handler
	Logger      *zerolog.Logger

	closers []func(context.Context) error
}

// Close releases every connection opened by Wire, newest first.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// Wire builds the HTTP service graph. On error every connection opened so far
// is closed.
func Wire(ctx context.Context, cfg *Config, logger *zerolog.Logger) (deps *Dependencies, err error) {
	deps = &Dependencies{Logger: logger}
	defer func() {
		if err != nil {
			_ = deps.Close(context.Background())
			deps = nil
		}
	}()

	llmClient, err := CreateLLMClient(ctx, cfg.LLMProvider, cfg.ModelID(), cfg)
	if err != nil {
		return deps, fmt.Errorf("failed to create llm client: %w", err)
	}

	guard, guardCfg, err := wireGuard(ctx, cfg, llmClient, logger)
	if err != nil {
		return deps, err
	}
	deps.Guard = guard
	deps.GuardConfig = guardCfg

	var redisClient *goredis.Client
	connectRedis := func() (*goredis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		client, err := redis.Connect(ctx, redis.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = client
		deps.closers = append(deps.closers, func(context.Context) error { return client.Close() })
		return client, nil
	}

	store, err := createConversationStore(ctx, cfg, connectRedis, deps)
	if err != nil {
		return deps, err
	}

	sink, err := createAuditSink(cfg, connectRedis, logger)
	if err != nil {
		return deps, err
	}
	deps.GuardFilter = middleware.NewGuardFilter(guard, guardCfg, sink, logger)

	mongo, err := database.Connect(ctx, database.Config{
		URI:          cfg.MongoURI,
		Database:     cfg.MongoDatabase,
		QueryTimeout: cfg.MongoQueryTimeout,
	}, logger)
	if err != nil {
		return deps, err
	}
	deps.closers = append(deps.closers, mongo.Close)

	results, err := agent.NewResultStore(cfg.ResultsDir, cfg.ResultTTL, logger)
	if err != nil {
		return deps, err
	}

	deps.Service = agent.NewService(llmClient, mongo, store, results, agent.ServiceConfig{
		DefaultCollection: cfg.DefaultCollection,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
	}, logger)
	deps.Handler = agent.NewHandler(deps.Service, guard, cfg.DefaultCollection)

	logger.Info().
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.ModelID()).
		Str("conversation_store", store.Kind()).
		Bool("audit", cfg.AuditEnabled).
		Msg("Dependencies wired")

	return deps, nil
}

// WireGuard builds only the guard, for processes that validate text without
// serving queries.
func WireGuard(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*guardrails.Guard, error) {
	var classifierClient llm.LLMClient
	client, err := CreateLLMClient(ctx, cfg.LLMProvider, cfg.ModelID(), cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("LLM client unavailable, topic classifier disabled")
	} else {
		classifierClient = client
	}

	guard, _, err := wireGuard(ctx, cfg, classifierClient, logger)
	return guard, err
}

func wireGuard(ctx context.Context, cfg *Config, mainClient llm.LLMClient, logger *zerolog.Logger) (*guardrails.Guard, *config.GuardrailsConfig, error) {
	guardCfg, err := config.LoadGuardrailsConfigFile(cfg.GuardrailsConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load guardrails config: %w", err)
	}

	classifierClient := mainClient
	if cfg.ClassifierProvider != "" || cfg.ClassifierModelID != "" {
		provider := cfg.ClassifierProvider
		if provider == "" {
			provider = cfg.LLMProvider
		}
		modelID := cfg.ClassifierModelID
		if modelID == "" {
			modelID = cfg.ModelID()
		}
		classifierClient, err = CreateLLMClient(ctx, provider, modelID, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create classifier client: %w", err)
		}
	}

	guard, err := guardrails.NewGuard(guardCfg, classifierClient, logger)
	if err != nil {
		return nil, nil, err
	}

	return guard, guardCfg, nil
}

func createConversationStore(
	ctx context.Context,
	cfg *Config,
	connectRedis func() (*goredis.Client, error),
	deps *Dependencies) (conversation.ConversationStore, error) {
	switch cfg.ConversationStore {
	case StoreMemory, "":
		return conversation.NewMemoryStore(), nil
	case StoreRedis:
		client, err := connectRedis()
		if err != nil {
			return nil, err
		}
		return conversation.NewRedisStore(client, "", cfg.RedisTTL), nil
	case StorePostgres:
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = cfg.Postgres.ConnectionString()
		}
		store, err := conversation.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", cfg.ConversationStore)
	}
}

func createAuditSink(cfg *Config, connectRedis func() (*goredis.Client, error), logger *zerolog.Logger) (audit.Sink, error) {
	logSink := audit.NewLogSink(logger)
	if !cfg.AuditEnabled {
		return logSink, nil
	}

	client, err := connectRedis()
	if err != nil {
		return nil, err
	}
	return audit.MultiSink{logSink, audit.NewRedisSink(client, cfg.AuditStream, cfg.AuditMaxLen)}, nil
}

// CreateLLMClient builds a client for provider with the given model.
func CreateLLMClient(ctx context.Context, provider string, modelID string, cfg *Config) (llm.LLMClient, error) {
	switch provider {
	case ProviderBedrock:
		return bedrock.NewClient(ctx, cfg.AWSRegion, modelID)
	case ProviderOpenAI:
		return gpt.NewClient(cfg.OpenAIKey, modelID)
	case ProviderOllama:
		return ollama.NewClient(cfg.OllamaURL, modelID, cfg.OllamaTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
