package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Validator names understood by the guardrails package.
const (
	ValidatorInjection     = "injection"
	ValidatorPII           = "pii"
	ValidatorProfanity     = "profanity"
	ValidatorToxicity      = "toxicity"
	ValidatorTopicKeywords = "topic_keywords"
	ValidatorTopicLLM      = "topic_llm"
)

var knownValidators = map[string]bool{
	ValidatorInjection:     true,
	ValidatorPII:           true,
	ValidatorProfanity:     true,
	ValidatorToxicity:      true,
	ValidatorTopicKeywords: true,
	ValidatorTopicLLM:      true,
}

// LoadGuardrailsConfig reads the YAML file named by GUARDRAILS_CONFIG_PATH
// (default configs/guardrails.yaml). A missing file yields the defaults.
func LoadGuardrailsConfig() (*GuardrailsConfig, error) {
	path := os.Getenv("GUARDRAILS_CONFIG_PATH")
	if path == "" {
		path = "configs/guardrails.yaml"
	}

	return LoadGuardrailsConfigFile(path)
}

func LoadGuardrailsConfigFile(path string) (*GuardrailsConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGuardrailsConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read guardrails config %s: %w", path, err)
	}

	return ParseGuardrailsConfig(data)
}

func ParseGuardrailsConfig(data []byte) (*GuardrailsConfig, error) {
	cfg := GuardrailsConfig{Enabled: true, Classifier: ClassifierConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse guardrails config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func DefaultGuardrailsConfig() *GuardrailsConfig {
	cfg := GuardrailsConfig{Enabled: true, Classifier: ClassifierConfig{Enabled: true}}
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *GuardrailsConfig) {
	if len(cfg.Input.Validators) == 0 {
		cfg.Input.Validators = []string{
			ValidatorInjection,
			ValidatorPII,
			ValidatorTopicKeywords,
			ValidatorTopicLLM,
			ValidatorToxicity,
			ValidatorProfanity,
		}
	}
	if cfg.Input.ToxicThreshold == 0 {
		cfg.Input.ToxicThreshold = 0.8
	}
	if len(cfg.Output.Validators) == 0 {
		cfg.Output.Validators = []string{ValidatorToxicity, ValidatorProfanity}
	}
	if cfg.Output.ToxicThreshold == 0 {
		cfg.Output.ToxicThreshold = 0.9
	}

	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 5 * time.Second
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = 60
	}
	if cfg.Classifier.Temperature == 0 {
		cfg.Classifier.Temperature = 0.1
	}
	if cfg.Classifier.CacheSize == 0 {
		cfg.Classifier.CacheSize = 100
	}
	if cfg.Classifier.RateLimit > 0 && cfg.Classifier.Burst == 0 {
		cfg.Classifier.Burst = 1
	}
	if len(cfg.Classifier.BlockedTopics) == 0 {
		cfg.Classifier.BlockedTopics = []string{
			"personal medical advice (diagnoses, treatments, medications)",
			"political opinions or voting recommendations",
			"personal financial or investment advice",
			"inappropriate or offensive content",
		}
	}

	if len(cfg.ProtectedEndpoints) == 0 {
		cfg.ProtectedEndpoints = []EndpointConfig{
			{Path: "/query", Input: true, Output: true},
			{Path: "/query/stream", Input: true, Stream: true},
			{Path: "/conversation/{thread_id}/history", Output: true},
		}
	}

	if cfg.MaxOutputLength == 0 {
		cfg.MaxOutputLength = 5000
	}
	if cfg.StreamMinLength == 0 {
		cfg.StreamMinLength = 20
	}
}

func (c *GuardrailsConfig) Validate() error {
	for _, chain := range []struct {
		name string
		cfg  ChainConfig
	}{{"input", c.Input}, {"output", c.Output}} {
		for _, name := range chain.cfg.Validators {
			if !knownValidators[name] {
				return fmt.Errorf("%s chain: unknown validator %q", chain.name, name)
			}
		}
		if chain.cfg.ToxicThreshold < 0 || chain.cfg.ToxicThreshold > 1 {
			return fmt.Errorf("%s chain: toxic_threshold must be within [0, 1], got %.2f", chain.name, chain.cfg.ToxicThreshold)
		}
	}

	if c.Classifier.CacheSize < 0 {
		return fmt.Errorf("classifier: cache_size must not be negative")
	}
	if c.Classifier.Timeout < 0 {
		return fmt.Errorf("classifier: timeout must not be negative")
	}

	for _, endpoint := range c.ProtectedEndpoints {
		if !strings.HasPrefix(endpoint.Path, "/") {
			return fmt.Errorf("protected endpoint %q must start with '/'", endpoint.Path)
		}
		if endpoint.Output && endpoint.Stream {
			return fmt.Errorf("protected endpoint %q cannot be both output and stream", endpoint.Path)
		}
	}

	return nil
}
