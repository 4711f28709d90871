package setup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, ProviderBedrock, cfg.LLMProvider)
	assert.Equal(t, StoreMemory, cfg.ConversationStore)
	assert.Equal(t, 30*time.Minute, cfg.RedisTTL)
	assert.Equal(t, 24*time.Hour, cfg.ResultTTL)
	assert.Equal(t, "guard-events", cfg.AuditStream)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DEFAULT_LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("CONVERSATION_STORE", "redis")
	t.Setenv("REDIS_TTL", "5m")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("AUDIT_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.ModelID())
	assert.Equal(t, StoreRedis, cfg.ConversationStore)
	assert.Equal(t, 5*time.Minute, cfg.RedisTTL)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.True(t, cfg.AuditEnabled)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("REDIS_TTL", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestModelID(t *testing.T) {
	cfg := &Config{ClaudeModelID: "claude", OpenAIModelID: "gpt", OllamaModel: "llama"}

	for provider, want := range map[string]string{
		ProviderBedrock: "claude",
		ProviderOpenAI:  "gpt",
		ProviderOllama:  "llama",
	} {
		cfg.LLMProvider = provider
		assert.Equal(t, want, cfg.ModelID(), provider)
	}
}

func TestCreateLLMClient_UnknownProvider(t *testing.T) {
	_, err := CreateLLMClient(context.Background(), "watson", "x", &Config{})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestWireGuard_WithoutClassifierClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardrails.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enabled: true\nclassifier:\n  enabled: false\n"), 0o644))

	cfg := &Config{
		LLMProvider:          ProviderOllama,
		OllamaURL:            "http://localhost:11434",
		OllamaModel:          "llama3.1:8b",
		OllamaTimeout:        time.Second,
		GuardrailsConfigPath: path,
	}

	guard, err := WireGuard(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	status := guard.Status()
	assert.True(t, status.Enabled)
	assert.False(t, status.ClassifierEnabled)
	assert.NotContains(t, status.InputValidators, "topic_llm")
}

func TestWireGuard_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardrails.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input:\n  validators: [unknown]\n"), 0o644))

	cfg := &Config{LLMProvider: "none", GuardrailsConfigPath: path}

	_, err := WireGuard(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestDependenciesClose(t *testing.T) {
	var order []int
	deps := &Dependencies{closers: []func(context.Context) error{
		func(context.Context) error { order = append(order, 1); return nil },
		func(context.Context) error { order = append(order, 2); return errors.New("boom") },
	}}

	err := deps.Close(context.Background())

	assert.EqualError(t, err, "boom")
	assert.Equal(t, []int{2, 1}, order)
}
