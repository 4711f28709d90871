package guardrails

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// defaultToxicTerms maps a term or phrase to its toxicity weight in [0, 1].
var defaultToxicTerms = map[string]float64{
	// threats
	"i will kill you":    1.0,
	"kill yourself":      1.0,
	"i will hurt you":    0.95,
	"you deserve to die": 1.0,
	"ti ammazzo":         1.0,
	"ammazzati":          1.0,
	"ti faccio male":     0.9,
	// harassment and insults
	"scum":       0.8,
	"go to hell": 0.7,
	"hate you":   0.7,
	"ti odio":    0.7,
	"worthless":  0.6,
	"idiot":      0.6,
	"moron":      0.6,
	"imbecile":   0.6,
	"idiota":     0.6,
	"cretino":    0.6,
	"imbecille":  0.6,
	"stupid":     0.5,
	"stupido":    0.5,
	"loser":      0.5,
	"shut up":    0.4,
	"stai zitto": 0.4,
}

// multiTermBonus is added to the score for each distinct toxic term after the first.
const multiTermBonus = 0.1

type toxicTerm struct {
	term   string
	weight float64
	re     *regexp.Regexp
}

// ToxicityValidator scores text against a weighted lexicon and blocks above a threshold.
type ToxicityValidator struct {
	terms     []toxicTerm
	threshold float64
	message   string
}

func NewToxicityValidator(threshold float64, extraTerms map[string]float64, message string) (*ToxicityValidator, error) {
	merged := make(map[string]float64, len(defaultToxicTerms)+len(extraTerms))
	for term, weight := range defaultToxicTerms {
		merged[term] = weight
	}
	for term, weight := range extraTerms {
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("toxicity weight for %q must be within [0, 1]", term)
		}
		merged[strings.ToLower(strings.TrimSpace(term))] = weight
	}

	terms := make([]toxicTerm, 0, len(merged))
	for term, weight := range merged {
		if term == "" {
			continue
		}
		terms = append(terms, toxicTerm{term: term, weight: weight, re: phraseRegexp(term)})
	}
	// deterministic evaluation order, heaviest first
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].term < terms[j].term
	})

	return &ToxicityValidator{
		terms:     terms,
		threshold: threshold,
		message:   message,
	}, nil
}

func (v *ToxicityValidator) Name() string { return "toxicity" }

func (v *ToxicityValidator) Cost() Cost { return CostCheap }

func (v *ToxicityValidator) Validate(_ context.Context, text string) (Result, error) {
	score, matched := v.Score(text)
	if score < v.threshold {
		return Pass(), nil
	}

	detail := fmt.Sprintf("score %.2f >= %.2f (%s)", score, v.threshold, strings.Join(matched, ", "))
	return Fail(ViolationContent, v.message, detail), nil
}

// Score returns the toxicity score of text and the matched terms.
func (v *ToxicityValidator) Score(text string) (float64, []string) {
	var matched []string
	var highest float64
	for _, t := range v.terms {
		if t.re.MatchString(text) {
			matched = append(matched, t.term)
			highest = math.Max(highest, t.weight)
		}
	}

	if len(matched) == 0 {
		return 0, nil
	}

	score := highest + multiTermBonus*float64(len(matched)-1)
	return math.Min(score, 1.0), matched
}

// phraseRegexp matches term as whole words, case-insensitively, with flexible whitespace.
func phraseRegexp(term string) *regexp.Regexp {
	words := strings.Fields(term)
	for i, word := range words {
		words[i] = regexp.QuoteMeta(word)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
}
