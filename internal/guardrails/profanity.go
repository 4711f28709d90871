package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var defaultProfanity = []string{
	"asshole", "bastard", "bitch", "bullshit", "crap", "damn", "fuck", "fucking", "shit",
	"cazzo", "merda", "minchia", "stronzo", "stronza", "vaffanculo",
}

// ProfanityFilter masks profane words and lets the request continue.
type ProfanityFilter struct {
	re      *regexp.Regexp
	message string
}

func NewProfanityFilter(extraWords []string, message string) *ProfanityFilter {
	seen := make(map[string]bool)
	var words []string
	for _, word := range append(append([]string{}, defaultProfanity...), extraWords...) {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, regexp.QuoteMeta(word))
	}
	// longest first so "fucking" wins over "fuck"
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	return &ProfanityFilter{
		re:      regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`),
		message: message,
	}
}

func (f *ProfanityFilter) Name() string { return "profanity" }

func (f *ProfanityFilter) Cost() Cost { return CostCheap }

func (f *ProfanityFilter) Validate(_ context.Context, text string) (Result, error) {
	count := 0
	cleaned := f.re.ReplaceAllStringFunc(text, func(word string) string {
		count++
		return strings.Repeat("*", utf8.RuneCountInString(word))
	})

	if count == 0 {
		return Pass(), nil
	}

	return Filtered(cleaned, f.message, fmt.Sprintf("%d word(s) masked", count)), nil
}

// Contains reports whether text has any profane word.
func (f *ProfanityFilter) Contains(text string) bool {
	return f.re.MatchString(text)
}
