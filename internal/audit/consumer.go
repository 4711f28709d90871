package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type ConsumerConfig struct {
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int64
	Block        time.Duration
}

// Consumer reads guard events from the stream with a consumer group, logs them
// and keeps counters.
type Consumer struct {
	client redis.Cmdable
	cfg    ConsumerConfig
	stats  *Stats
	logger *zerolog.Logger
}

func NewConsumer(client redis.Cmdable, cfg ConsumerConfig, logger *zerolog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = "guard-audit"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "audit-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}

	return &Consumer{
		client: client,
		cfg:    cfg,
		stats:  NewStats(),
		logger: logger,
	}
}

func (c *Consumer) Setup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("stream", c.cfg.Stream).
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.ConsumerName).
		Msg("Audit consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.Block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	event, err := decodeMessage(msg)
	if err != nil {
		// malformed messages are acked so they are not redelivered forever
		c.logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to decode guard event")
		c.ack(ctx, msg.ID)
		return
	}

	c.stats.Record(event)

	c.logger.Info().
		Str("id", msg.ID).
		Time("at", event.Timestamp).
		Str("direction", event.Direction).
		Str("path", event.Path).
		Str("validator", event.Validator).
		Str("violation_type", event.ViolationType).
		Str("outcome", string(event.Outcome)).
		Msg("Guard event")

	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msgID).Err(); err != nil {
		c.logger.Error().Err(err).Str("id", msgID).Msg("Failed to ACK message")
	}
}

var errMissingPayload = errors.New("missing payload field")

func decodeMessage(msg redis.XMessage) (Event, error) {
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		return Event{}, errMissingPayload
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
