package guardrails

import (
	"context"
	"regexp"
)

type topicGroup struct {
	topic string
	re    *regexp.Regexp
	// exemptable groups pass when the text is clearly about data analysis
	exemptable bool
}

var topicGroups = []topicGroup{
	{
		topic:      "medical",
		exemptable: true,
		re: regexp.MustCompile(`(?i)\b(mal\s+di|cosa\s+prendo|farmac[oi]|medicin[ae]|rimedi[oi]|cura\s+per|` +
			`what\s+(medicine|medication|drug|pill)s?\s+should|cure\s+for|remedy\s+for|` +
			`diagnose\s+(me|my)|should\s+i\s+take|dosage)\b`),
	},
	{
		topic: "financial",
		re: regexp.MustCompile(`(?i)\b(should\s+i\s+(buy|sell|invest)|investment\s+advice|` +
			`which\s+(stocks?|crypto|shares)\s+should|in\s+cosa\s+investire|dovrei\s+investire|` +
			`consigli\s+(di|sugli|per)\s+investiment[oi])\b`),
	},
	{
		topic: "political",
		re: regexp.MustCompile(`(?i)\b(who\s+should\s+i\s+vote|per\s+chi\s+(dovrei\s+)?votare|` +
			`which\s+party\s+(is\s+better|should)|best\s+political\s+party|` +
			`miglior\s+partito)\b`),
	},
}

var dataAnalysisRe = regexp.MustCompile(`(?i)\b(analisi|analysis|analy[sz]e|dati|data|database|query|` +
	`statistic[as]?|statistiche|report|count|average|media|collection|collezione)\b`)

// KeywordTopicValidator blocks requests for personal advice using keyword groups.
type KeywordTopicValidator struct {
	message string
}

func NewKeywordTopicValidator(message string) *KeywordTopicValidator {
	return &KeywordTopicValidator{message: message}
}

func (v *KeywordTopicValidator) Name() string { return "topic_keywords" }

func (v *KeywordTopicValidator) Cost() Cost { return CostCheap }

func (v *KeywordTopicValidator) Validate(_ context.Context, text string) (Result, error) {
	isDataAnalysis := dataAnalysisRe.MatchString(text)

	for _, group := range topicGroups {
		match := group.re.FindString(text)
		if match == "" {
			continue
		}
		if group.exemptable && isDataAnalysis {
			continue
		}
		return Fail(ViolationTopic, v.message, group.topic+": "+match), nil
	}

	return Pass(), nil
}
