package guardrails

import (
	"context"
	"fmt"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/rs/zerolog"
)

const (
	DirectionInput  = "input"
	DirectionOutput = "output"
)

// Guard owns the input and output chains built from the guardrails config.
type Guard struct {
	cfg        *config.GuardrailsConfig
	input      *Chain
	output     *Chain
	classifier *TopicClassifier
	messages   Messages
	logger     *zerolog.Logger
}

type Status struct {
	Enabled            bool                    `json:"enabled"`
	InputValidators    []string                `json:"input_validators"`
	OutputValidators   []string                `json:"output_validators"`
	ClassifierEnabled  bool                    `json:"classifier_enabled"`
	ClassifierModel    string                  `json:"classifier_model,omitempty"`
	ClassifierCache    *CacheStats             `json:"classifier_cache,omitempty"`
	ProtectedEndpoints []config.EndpointConfig `json:"protected_endpoints"`
	MaxOutputLength    int                     `json:"max_output_length"`
}

// NewGuard builds both chains. classifierClient may be nil, in which case
// topic_llm is left out of every chain.
func NewGuard(cfg *config.GuardrailsConfig, classifierClient llm.LLMClient, logger *zerolog.Logger) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guardrails config: %w", err)
	}

	g := &Guard{
		cfg:      cfg,
		messages: NewMessages(cfg.CustomMessages),
		logger:   logger,
	}

	if cfg.Classifier.Enabled && classifierClient != nil {
		g.classifier = NewTopicClassifier(classifierClient, cfg.Classifier, logger)
	}

	input, err := g.buildChain(DirectionInput, cfg.Input)
	if err != nil {
		return nil, err
	}
	output, err := g.buildChain(DirectionOutput, cfg.Output)
	if err != nil {
		return nil, err
	}
	g.input = input
	g.output = output

	logger.Info().
		Bool("enabled", cfg.Enabled).
		Strs("input", input.Validators()).
		Strs("output", output.Validators()).
		Bool("classifier", g.classifier != nil).
		Msg("Guardrails initialized")

	return g, nil
}

func (g *Guard) buildChain(direction string, chainCfg config.ChainConfig) (*Chain, error) {
	validators := make([]Validator, 0, len(chainCfg.Validators))

	for _, name := range chainCfg.Validators {
		switch name {
		case config.ValidatorInjection:
			validators = append(validators, NewInjectionValidator(g.messages.Get(MessageInjection)))
		case config.ValidatorPII:
			v, err := NewPIIValidator(g.cfg.PII.Entities, g.messages.Get(MessagePII))
			if err != nil {
				return nil, err
			}
			validators = append(validators, v)
		case config.ValidatorProfanity:
			validators = append(validators, NewProfanityFilter(g.cfg.Profanity.Words, g.messages.Get(MessageProfanity)))
		case config.ValidatorToxicity:
			v, err := NewToxicityValidator(chainCfg.ToxicThreshold, g.cfg.Toxicity.Terms, g.messages.Get(MessageToxic))
			if err != nil {
				return nil, err
			}
			validators = append(validators, v)
		case config.ValidatorTopicKeywords:
			validators = append(validators, NewKeywordTopicValidator(g.messages.Get(MessageTopic)))
		case config.ValidatorTopicLLM:
			if g.classifier == nil {
				g.logger.Warn().Str("chain", direction).Msg("topic_llm configured but classifier is disabled, skipping")
				continue
			}
			validators = append(validators, NewLLMTopicValidator(g.classifier, g.messages.Get(MessageTopic)))
		default:
			return nil, fmt.Errorf("%s chain: unknown validator %q", direction, name)
		}
	}

	return NewChain(direction, validators, g.logger), nil
}

func (g *Guard) Enabled() bool {
	return g.cfg.Enabled
}

func (g *Guard) Config() *config.GuardrailsConfig {
	return g.cfg
}

func (g *Guard) Messages() Messages {
	return g.messages
}

func (g *Guard) ValidateInput(ctx context.Context, text string) Report {
	return g.input.Run(ctx, text)
}

func (g *Guard) ValidateOutput(ctx context.Context, text string) Report {
	return g.output.Run(ctx, text)
}

func (g *Guard) Status() Status {
	status := Status{
		Enabled:            g.cfg.Enabled,
		InputValidators:    g.input.Validators(),
		OutputValidators:   g.output.Validators(),
		ClassifierEnabled:  g.classifier != nil,
		ProtectedEndpoints: g.cfg.ProtectedEndpoints,
		MaxOutputLength:    g.cfg.MaxOutputLength,
	}

	if g.classifier != nil {
		stats := g.classifier.CacheStats()
		status.ClassifierCache = &stats
		status.ClassifierModel = g.classifier.client.Model()
	}

	return status
}
