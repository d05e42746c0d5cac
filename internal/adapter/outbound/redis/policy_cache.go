package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// DefaultCacheTTL is the fixed TTL for cached active-policy sets.
const DefaultCacheTTL = 60 * time.Second

// RedisPolicyCache implements policy.Cache over Redis. Every failure is
// absorbed here: a read failure is a miss, a write failure is logged and
// swallowed. Cache unavailability costs latency, never correctness.
//
// Entries carry an xxhash checksum of the serialized policy set; a payload
// whose recomputed checksum mismatches is treated as a miss rather than
// risking evaluation against a corrupted policy set.
type RedisPolicyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// cachePayload is the stored cache entry.
type cachePayload struct {
	Checksum string          `json:"checksum"`
	Policies json.RawMessage `json:"policies"`
}

// NewPolicyCache creates a policy cache with the given TTL.
// A zero ttl falls back to DefaultCacheTTL.
func NewPolicyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisPolicyCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisPolicyCache{client: client, ttl: ttl, logger: logger}
}

// GetActive returns the cached active-policy set, or ok=false on miss.
// Deserialization reconstructs rule amounts as exact big integers and
// timestamps as true time values; nothing round-trips through a float.
func (c *RedisPolicyCache) GetActive(ctx context.Context, walletID string) ([]policy.Policy, bool) {
	raw, err := c.client.Get(ctx, cacheKey(walletID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("policy cache read failed, treating as miss",
				"wallet_id", walletID, "error", err)
		}
		return nil, false
	}

	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("policy cache entry undecodable, treating as miss",
			"wallet_id", walletID, "error", err)
		return nil, false
	}

	if sum := checksum(payload.Policies); sum != payload.Checksum {
		c.logger.Warn("policy cache checksum mismatch, treating as miss",
			"wallet_id", walletID, "stored", payload.Checksum, "computed", sum)
		return nil, false
	}

	var policies []policy.Policy
	if err := json.Unmarshal(payload.Policies, &policies); err != nil {
		c.logger.Warn("cached policy set undecodable, treating as miss",
			"wallet_id", walletID, "error", err)
		return nil, false
	}
	return policies, true
}

// PutActive stores the active-policy set under the fixed TTL.
// Write failures are logged and swallowed.
func (c *RedisPolicyCache) PutActive(ctx context.Context, walletID string, policies []policy.Policy) {
	body, err := json.Marshal(policies)
	if err != nil {
		c.logger.Warn("policy cache encode failed, skipping write",
			"wallet_id", walletID, "error", err)
		return
	}

	payload, err := json.Marshal(cachePayload{
		Checksum: checksum(body),
		Policies: body,
	})
	if err != nil {
		c.logger.Warn("policy cache encode failed, skipping write",
			"wallet_id", walletID, "error", err)
		return
	}

	if err := c.client.Set(ctx, cacheKey(walletID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed",
			"wallet_id", walletID, "error", err)
	}
}

// Invalidate drops the cached entry for a wallet.
func (c *RedisPolicyCache) Invalidate(ctx context.Context, walletID string) {
	if err := c.client.Del(ctx, cacheKey(walletID)).Err(); err != nil {
		c.logger.Error("policy cache invalidation failed, stale rules may be served until TTL",
			"wallet_id", walletID, "error", err)
	}
}

func cacheKey(walletID string) string {
	return "policies:active:" + walletID
}

func checksum(body []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(body))
}

// Compile-time interface verification.
var _ policy.Cache = (*RedisPolicyCache)(nil)
