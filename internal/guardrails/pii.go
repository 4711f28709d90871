package guardrails

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed pii_patterns.yaml
var piiPatternsYAML []byte

type piiPatternFile struct {
	Patterns []piiPatternDef `yaml:"patterns"`
}

type piiPatternDef struct {
	Entity      string `yaml:"entity"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`
}

type piiPattern struct {
	entity string
	label  string
	re     *regexp.Regexp
}

// PIIValidator blocks text containing personal data recognised by the embedded patterns.
type PIIValidator struct {
	patterns []piiPattern
	message  string
}

// NewPIIValidator compiles the embedded patterns. entities restricts the active
// patterns by entity name; an empty list enables all of them.
func NewPIIValidator(entities []string, message string) (*PIIValidator, error) {
	var file piiPatternFile
	if err := yaml.Unmarshal(piiPatternsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse embedded pii patterns: %w", err)
	}

	enabled := make(map[string]bool, len(entities))
	for _, entity := range entities {
		enabled[strings.ToUpper(entity)] = true
	}

	patterns := make([]piiPattern, 0, len(file.Patterns))
	for _, def := range file.Patterns {
		if len(enabled) > 0 && !enabled[def.Entity] {
			continue
		}

		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pii pattern %s: %w", def.Entity, err)
		}

		patterns = append(patterns, piiPattern{entity: def.Entity, label: def.Label, re: re})
	}

	return &PIIValidator{
		patterns: patterns,
		message:  message,
	}, nil
}

func (v *PIIValidator) Name() string { return "pii" }

func (v *PIIValidator) Cost() Cost { return CostCheap }

func (v *PIIValidator) Validate(_ context.Context, text string) (Result, error) {
	detected := v.Detect(text)
	if len(detected) == 0 {
		return Pass(), nil
	}

	return Fail(ViolationPII, v.message, "detected: "+strings.Join(detected, ", ")), nil
}

// Detect returns the labels of every personal data type found in text.
func (v *PIIValidator) Detect(text string) []string {
	var detected []string
	for _, p := range v.patterns {
		if p.re.MatchString(text) {
			detected = append(detected, p.label)
		}
	}
	return detected
}

// Entities returns the active entity names.
func (v *PIIValidator) Entities() []string {
	entities := make([]string, 0, len(v.patterns))
	for _, p := range v.patterns {
		entities = append(entities, p.entity)
	}
	return entities
}
