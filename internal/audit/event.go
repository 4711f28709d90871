// Package audit records guardrail decisions and ships them to a Redis stream.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeBlocked     Outcome = "blocked"
	OutcomeFiltered    Outcome = "filtered"
	OutcomeFailedOpen  Outcome = "failed_open"
	OutcomeJSONInvalid Outcome = "json_invalid"
	OutcomeTruncated   Outcome = "truncated"
)

type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Direction     string    `json:"direction"`
	Path          string    `json:"path"`
	Validator     string    `json:"validator,omitempty"`
	ViolationType string    `json:"violation_type,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Message       string    `json:"message,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

func NewEvent(direction string, path string, outcome Outcome) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Direction: direction,
		Path:      path,
		Outcome:   outcome,
	}
}

type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.logger.Info().
		Str("event_id", event.ID).
		Str("direction", event.Direction).
		Str("path", event.Path).
		Str("validator", event.Validator).
		Str("violation_type", event.ViolationType).
		Str("outcome", string(event.Outcome)).
		Str("detail", event.Detail).
		Msg("Guard event")
	return nil
}

// MultiSink publishes to every sink and joins the errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
