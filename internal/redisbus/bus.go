// Package redisbus carries statement lifecycle events over Redis pub/sub so
// every service instance learns when a statement changes elsewhere.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Handler processes an incoming event.
type Handler func(ctx context.Context, event *Event) error

// Bus wraps a Redis client for pub/sub communication.
type Bus struct {
	client        *redis.Client
	channelPrefix string
	logger        *slog.Logger
}

// NewBus creates a bus on an existing client. The client is shared with the
// Redis settings store, so closing it is left to the caller.
func NewBus(client *redis.Client, channelPrefix string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		client:        client,
		channelPrefix: channelPrefix,
		logger:        logger,
	}
}

// HealthCheck verifies Redis connectivity.
func (b *Bus) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends an event to the appropriate Redis channel.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	channel := b.channelFor(event.EventType)
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}

	b.logger.Debug("Published event",
		"event_type", event.EventType,
		"channel", channel,
		"correlation_id", event.CorrelationID,
	)
	return nil
}

// Listen subscribes to the channels of eventTypes and hands every decoded
// event to handler, one at a time. ready, when non-nil, is closed once Redis
// has confirmed the subscription. Listen returns nil when ctx is cancelled.
func (b *Bus) Listen(ctx context.Context, ready chan<- struct{}, handler Handler, eventTypes ...string) error {
	if len(eventTypes) == 0 {
		return fmt.Errorf("listen: no event types")
	}
	channels := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		channels[i] = b.channelFor(t)
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	// One confirmation arrives per channel.
	for range channels {
		if _, err := pubsub.Receive(ctx); err != nil {
			return fmt.Errorf("subscribing to %v: %w", channels, err)
		}
	}
	if ready != nil {
		close(ready)
	}
	b.logger.Info("Listening for statement events", "channels", channels)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				b.logger.Warn("Redis subscription closed", "channels", channels)
				return nil
			}
			b.dispatch(ctx, msg, handler)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg *redis.Message, handler Handler) {
	event, err := UnmarshalEvent([]byte(msg.Payload))
	if err != nil {
		b.logger.Error("Dropping undecodable event",
			"channel", msg.Channel,
			"error", err,
			"payload_preview", truncate(msg.Payload, 200),
		)
		return
	}
	if err := handler(ctx, event); err != nil {
		b.logger.Error("Event handler failed",
			"event_type", event.EventType,
			"correlation_id", event.CorrelationID,
			"error", err,
		)
	}
}

func (b *Bus) channelFor(eventType string) string {
	return b.channelPrefix + ":" + eventType
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
