package config

import "time"

// GuardrailsConfig represents the complete content-safety configuration
type GuardrailsConfig struct {
	Enabled            bool              `yaml:"enabled"`
	Input              ChainConfig       `yaml:"input"`
	Output             ChainConfig       `yaml:"output"`
	PII                PIIConfig         `yaml:"pii"`
	Profanity          ProfanityConfig   `yaml:"profanity"`
	Toxicity           ToxicityConfig    `yaml:"toxicity"`
	Classifier         ClassifierConfig  `yaml:"classifier"`
	ProtectedEndpoints []EndpointConfig  `yaml:"protected_endpoints"`
	CustomMessages     map[string]string `yaml:"custom_messages"`
	MaxOutputLength    int               `yaml:"max_output_length"`
	StreamMinLength    int               `yaml:"stream_min_length"`
}

// ChainConfig lists the validators applied to one direction of traffic.
type ChainConfig struct {
	Validators     []string `yaml:"validators"`
	ToxicThreshold float64  `yaml:"toxic_threshold"`
}

// PIIConfig selects which embedded PII patterns are active. Empty means all.
type PIIConfig struct {
	Entities []string `yaml:"entities"`
}

type ProfanityConfig struct {
	Words []string `yaml:"words"`
}

// ToxicityConfig extends the built-in lexicon with extra weighted terms
type ToxicityConfig struct {
	Terms map[string]float64 `yaml:"terms"`
}

// ClassifierConfig drives the LLM topic classifier
type ClassifierConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
	CacheSize     int           `yaml:"cache_size"`
	RateLimit     float64       `yaml:"rate_limit"`
	Burst         int           `yaml:"burst"`
	BlockedTopics []string      `yaml:"blocked_topics"`
}

// EndpointConfig marks a path template as protected. `{name}` matches one path segment.
type EndpointConfig struct {
	Path   string `yaml:"path"`
	Input  bool   `yaml:"input"`
	Output bool   `yaml:"output"`
	Stream bool   `yaml:"stream"`
}
