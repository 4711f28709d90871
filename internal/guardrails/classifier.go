package guardrails

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionBlock Decision = "BLOCK"
)

type Verdict struct {
	Decision   Decision `json:"decision"`
	Reason     string   `json:"reason"`
	Cached     bool     `json:"cached"`
	FailedOpen bool     `json:"failed_open"`
	Err        error    `json:"-"`
}

var errUnparseable = errors.New("unparseable classifier response")

const systemPromptTemplate = `You are a topic classifier for a database analytics assistant.
Decide whether the user's message asks for any of these blocked topics:
%s
Rules:
- Requests to query, analyse, count or summarise data are always ALLOW, even when the data is about health, money or politics.
- General conversation and questions about the assistant are ALLOW.
- If you are not sure, answer ALLOW.

Respond ONLY in this format:
DECISION: [ALLOW or BLOCK]
REASON: [one short sentence]`

// TopicClassifier asks an LLM whether text requests a blocked topic. Any
// failure yields ALLOW. Verdicts are cached and concurrent identical
// requests share a single outbound call.
type TopicClassifier struct {
	client       llm.LLMClient
	cache        *ClassificationCache
	limiter      *rate.Limiter
	inflight     singleflight.Group
	timeout      time.Duration
	maxTokens    int
	temperature  float64
	systemPrompt string
	logger       *zerolog.Logger
}

func NewTopicClassifier(client llm.LLMClient, cfg config.ClassifierConfig, logger *zerolog.Logger) *TopicClassifier {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	topics := make([]string, 0, len(cfg.BlockedTopics))
	for _, topic := range cfg.BlockedTopics {
		topics = append(topics, "- "+topic)
	}

	return &TopicClassifier{
		client:       client,
		cache:        NewClassificationCache(cfg.CacheSize),
		limiter:      limiter,
		timeout:      cfg.Timeout,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: fmt.Sprintf(systemPromptTemplate, strings.Join(topics, "\n")),
		logger:       logger,
	}
}

func (c *TopicClassifier) Classify(ctx context.Context, text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Decision: DecisionAllow, Reason: "empty text"}
	}

	if verdict, ok := c.cache.Get(text); ok {
		metrics.ClassifierCache.WithLabelValues("hit").Inc()
		verdict.Cached = true
		return verdict
	}

	// The shared call must not end when the caller that started it goes away;
	// the classifier timeout still bounds it.
	flightCtx := context.WithoutCancel(ctx)

	result, _, _ := c.inflight.Do(CacheKey(text), func() (any, error) {
		if verdict, ok := c.cache.Get(text); ok {
			verdict.Cached = true
			return verdict, nil
		}
		c.cache.RecordMiss()
		metrics.ClassifierCache.WithLabelValues("miss").Inc()

		verdict, err := c.classify(flightCtx, text)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Topic classification failed, allowing content")
			return Verdict{
				Decision:   DecisionAllow,
				Reason:     "classification unavailable",
				FailedOpen: true,
				Err:        err,
			}, nil
		}

		c.cache.Set(text, verdict)
		return verdict, nil
	})

	return result.(Verdict)
}

func (c *TopicClassifier) classify(ctx context.Context, text string) (Verdict, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			metrics.ClassifierCalls.WithLabelValues("error").Inc()
			return Verdict{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	response, err := c.client.InvokeModel(callCtx, llm.LLMRequest{
		Prompt:       buildClassificationPrompt(text),
		SystemPrompt: c.systemPrompt,
		MaxTokens:    c.maxTokens,
		Temperature:  c.temperature,
	})
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())

	if err == nil && callCtx.Err() != nil {
		// late response after the deadline
		err = callCtx.Err()
	}
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("error").Inc()
		return Verdict{}, fmt.Errorf("invoke classifier: %w", err)
	}

	verdict, err := parseClassification(response.Content)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("error").Inc()
		return Verdict{}, fmt.Errorf("%w: %q", err, truncate(response.Content, 120))
	}

	metrics.ClassifierCalls.WithLabelValues(strings.ToLower(string(verdict.Decision))).Inc()
	c.logger.Debug().
		Str("decision", string(verdict.Decision)).
		Str("reason", verdict.Reason).
		Dur("latency", time.Since(start)).
		Msg("Topic classified")

	return verdict, nil
}

func (c *TopicClassifier) CacheStats() CacheStats {
	return c.cache.Stats()
}

func buildClassificationPrompt(text string) string {
	return fmt.Sprintf("Message:\n\"\"\"\n%s\n\"\"\"\n\nClassify the message above.", text)
}

func parseClassification(response string) (Verdict, error) {
	var verdict Verdict

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "DECISION:"):
			if decision, ok := decisionFrom(upper[len("DECISION:"):]); ok {
				verdict.Decision = decision
			}
		case strings.HasPrefix(upper, "REASON:"):
			verdict.Reason = strings.TrimSpace(line[len("REASON:"):])
		}
	}

	if verdict.Decision == "" {
		// small models sometimes answer with the bare decision word
		fields := strings.Fields(strings.ToUpper(response))
		if len(fields) > 0 {
			if decision, ok := decisionFrom(fields[0]); ok {
				verdict.Decision = decision
			}
		}
	}

	if verdict.Decision == "" {
		return Verdict{}, errUnparseable
	}

	return verdict, nil
}

// decisionFrom maps an upper-cased answer to a decision. Answers naming both are rejected.
func decisionFrom(value string) (Decision, bool) {
	value = strings.Trim(strings.TrimSpace(value), "[]*.:,!\"'")
	allow := strings.Contains(value, "ALLOW")
	block := strings.Contains(value, "BLOCK")

	switch {
	case allow && !block:
		return DecisionAllow, true
	case block && !allow:
		return DecisionBlock, true
	default:
		return "", false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// LLMTopicValidator adapts TopicClassifier to the Validator interface.
type LLMTopicValidator struct {
	classifier *TopicClassifier
	message    string
}

func NewLLMTopicValidator(classifier *TopicClassifier, message string) *LLMTopicValidator {
	return &LLMTopicValidator{classifier: classifier, message: message}
}

func (v *LLMTopicValidator) Name() string { return "topic_llm" }

func (v *LLMTopicValidator) Cost() Cost { return CostExpensive }

func (v *LLMTopicValidator) Validate(ctx context.Context, text string) (Result, error) {
	verdict := v.classifier.Classify(ctx, text)
	if verdict.FailedOpen {
		return Result{}, verdict.Err
	}

	if verdict.Decision == DecisionBlock {
		return Fail(ViolationTopic, v.message, "llm: "+verdict.Reason), nil
	}

	return Pass(), nil
}
