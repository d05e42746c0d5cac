package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// incrExpireScript increments a counter and (re)sets its expiry as one
// atomic operation. Two concurrent evaluations on the same wallet/window
// must never interleave a read-then-write here.
// KEYS[1] = counter key
// ARGV[1] = increment delta
// ARGV[2] = TTL in seconds
var incrExpireScript = redis.NewScript(`
local value = redis.call("INCRBY", KEYS[1], ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return value
`)

// RedisCounterStore implements policy.CounterStore using Redis.
type RedisCounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a counter store backed by the given client.
func NewCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Get returns the raw counter value, or ok=false when the key is absent.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value with a TTL.
func (s *RedisCounterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes a key.
func (s *RedisCounterStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// IncrByExpire executes the Lua script combining INCRBY and EXPIRE in one
// transaction, returning the new counter value.
// Redis counters are 64-bit: a delta outside int64 cannot be committed and
// is rejected rather than truncated.
func (s *RedisCounterStore) IncrByExpire(ctx context.Context, key string, delta *big.Int, ttl time.Duration) (*big.Int, error) {
	if !delta.IsInt64() {
		return nil, fmt.Errorf("delta %s exceeds the 64-bit counter range", delta)
	}

	res, err := incrExpireScript.Run(ctx, s.client, []string{key},
		delta.Int64(), int64(ttl.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("redis incrby+expire %s: %w", key, err)
	}

	value, ok := res.(int64)
	if !ok {
		return nil, fmt.Errorf("invalid response from counter script: %T", res)
	}
	return big.NewInt(value), nil
}

// Compile-time interface verification.
var _ policy.CounterStore = (*RedisCounterStore)(nil)
