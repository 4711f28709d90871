package guardrails

import (
	"context"
	"fmt"
	"sort"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/metrics"
	"github.com/rs/zerolog"
)

// Cost orders validators inside a chain: every cheap check runs before any expensive one.
type Cost int

const (
	CostCheap Cost = iota
	CostExpensive
)

type Validator interface {
	Name() string
	Cost() Cost
	Validate(ctx context.Context, text string) (Result, error)
}

type Chain struct {
	name       string
	validators []Validator
	logger     *zerolog.Logger
}

func NewChain(name string, validators []Validator, logger *zerolog.Logger) *Chain {
	ordered := make([]Validator, len(validators))
	copy(ordered, validators)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Cost() < ordered[j].Cost()
	})

	return &Chain{
		name:       name,
		validators: ordered,
		logger:     logger,
	}
}

func (c *Chain) Name() string {
	return c.name
}

// Validators returns the validator names in execution order.
func (c *Chain) Validators() []string {
	names := make([]string, 0, len(c.validators))
	for _, v := range c.validators {
		names = append(names, v.Name())
	}
	return names
}

// Run applies the validators in order. The first blocking failure stops the chain;
// filtering validators rewrite the text seen by the validators after them.
func (c *Chain) Run(ctx context.Context, text string) Report {
	report := Report{Text: text}

	for _, v := range c.validators {
		result, err := c.runValidator(ctx, v, report.Text)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("chain", c.name).
				Str("validator", v.Name()).
				Msg("Validator failed, allowing content")
			metrics.ValidatorFailOpen.WithLabelValues(v.Name()).Inc()
			report.FailedOpen = append(report.FailedOpen, v.Name())
			continue
		}

		switch result.Outcome {
		case OutcomeFail:
			report.Violation = &Violation{
				Type:      result.Category,
				Message:   result.Message,
				Validator: v.Name(),
				Detail:    result.Detail,
			}
			c.logger.Info().
				Str("chain", c.name).
				Str("validator", v.Name()).
				Str("violation_type", string(result.Category)).
				Str("detail", result.Detail).
				Msg("Content blocked")
			metrics.Validations.WithLabelValues(c.name, "blocked").Inc()
			metrics.Violations.WithLabelValues(c.name, string(result.Category)).Inc()
			return report
		case OutcomeFiltered:
			report.Text = result.Text
			report.Filtered = append(report.Filtered, v.Name())
			c.logger.Info().
				Str("chain", c.name).
				Str("validator", v.Name()).
				Str("detail", result.Detail).
				Msg("Content filtered")
		}
	}

	if report.Modified() {
		metrics.Validations.WithLabelValues(c.name, "filtered").Inc()
	} else {
		metrics.Validations.WithLabelValues(c.name, "pass").Inc()
	}

	return report
}

func (c *Chain) runValidator(ctx context.Context, v Validator, text string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator %s panicked: %v", v.Name(), r)
		}
	}()

	return v.Validate(ctx, text)
}
