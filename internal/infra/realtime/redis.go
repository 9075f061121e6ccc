package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
)

type envelope struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisBridge relays events through a Redis channel so that every instance
// delivers them to its own websocket clients.
type RedisBridge struct {
	rdb     *goredis.Client
	channel string
	local   Publisher
	logger  *slog.Logger
}

func NewRedisBridge(rdb *goredis.Client, channel string, local Publisher, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, channel: channel, local: local, logger: logger}
}

func (b *RedisBridge) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := json.Marshal(envelope{Topic: topic, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run forwards channel messages to the local transport until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info("Realtime bridge subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) forward(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Warn("Malformed realtime envelope", "error", err)
		return
	}
	if err := b.local.Publish(ctx, env.Topic, env.Event, env.Data); err != nil {
		b.logger.Warn("Local realtime publish failed", "topic", env.Topic, "error", err)
	}
}
