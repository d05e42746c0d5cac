package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// DefaultEventChannel is the pub/sub channel evaluation events are
// published on.
const DefaultEventChannel = "policy.evaluations"

// RedisPublisher implements policy.EventPublisher over Redis pub/sub.
// Publishing is fire-and-forget: the caller logs failures, nothing more.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates an event publisher on the given channel.
// An empty channel falls back to DefaultEventChannel.
func NewPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish serializes the evaluation and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, ev *policy.Evaluation) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish evaluation event: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ policy.EventPublisher = (*RedisPublisher)(nil)
