package guardrails

import (
	"context"
	"regexp"
)

type injectionRule struct {
	kind string
	re   *regexp.Regexp
}

var injectionRules = []injectionRule{
	// Prompt injection
	{"prompt_injection", regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+)?(the\s+|your\s+)?(previous|prior|above|earlier|system)\s+(instructions|prompts?|rules|messages)`)},
	{"prompt_injection", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|leak)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+instructions|initial\s+instructions)`)},
	{"prompt_injection", regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(an?\s+)?(unrestricted|unfiltered|jailbroken|dan)\b`)},
	{"prompt_injection", regexp.MustCompile(`(?i)\b(jailbreak|dan\s+mode|developer\s+mode\s+enabled)\b`)},

	// NoSQL server-side code execution
	{"nosql_injection", regexp.MustCompile(`\$where\b`)},
	{"nosql_injection", regexp.MustCompile(`\$function\b`)},
	{"nosql_injection", regexp.MustCompile(`\$accumulator\b`)},
	{"nosql_injection", regexp.MustCompile(`(?i)\bdb\.eval\b|\beval\s*\(`)},
	{"nosql_injection", regexp.MustCompile(`(?i)\bmapReduce\b`)},
	{"nosql_injection", regexp.MustCompile(`(?i)\bdb\.\w+\.(drop|remove|deleteMany|deleteOne)\s*\(`)},

	// Shell and SQL
	{"command_injection", regexp.MustCompile(`(?i);\s*(rm|curl|wget|nc|bash|sh|chmod)\b`)},
	{"command_injection", regexp.MustCompile(`\$\([^)]*\)`)},
	{"command_injection", regexp.MustCompile("(?i)`\\s*(rm|curl|wget|cat|bash|sh)\\b[^`]*`")},
	{"sql_injection", regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`)},
	{"sql_injection", regexp.MustCompile(`(?i)\bdrop\s+(table|database|collection)\b`)},
	{"sql_injection", regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
}

// InjectionValidator blocks prompt, NoSQL, shell and SQL injection attempts.
type InjectionValidator struct {
	message string
}

func NewInjectionValidator(message string) *InjectionValidator {
	return &InjectionValidator{message: message}
}

func (v *InjectionValidator) Name() string { return "injection" }

func (v *InjectionValidator) Cost() Cost { return CostCheap }

func (v *InjectionValidator) Validate(_ context.Context, text string) (Result, error) {
	for _, rule := range injectionRules {
		if match := rule.re.FindString(text); match != "" {
			return Fail(ViolationInjection, v.message, rule.kind+": "+match), nil
		}
	}
	return Pass(), nil
}
