package memory

import (
	"context"
	"sync"
	"time"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// cacheEntry is one cached active-policy set with its expiry.
type cacheEntry struct {
	policies  []policy.Policy
	expiresAt time.Time
}

// MemoryPolicyCache is an in-process active-policy cache for dev mode and
// tests. Entries expire lazily on read.
type MemoryPolicyCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ policy.Cache = (*MemoryPolicyCache)(nil)

// NewPolicyCache creates a cache with the given TTL.
func NewPolicyCache(ttl time.Duration) *MemoryPolicyCache {
	return NewPolicyCacheAt(ttl, time.Now)
}

// NewPolicyCacheAt creates a cache with an injected clock.
func NewPolicyCacheAt(ttl time.Duration, now func() time.Time) *MemoryPolicyCache {
	return &MemoryPolicyCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// GetActive returns the cached active-policy set, or ok=false on miss.
func (c *MemoryPolicyCache) GetActive(_ context.Context, walletID string) ([]policy.Policy, bool) {
	c.mu.RLock()
	entry, ok := c.entries[walletID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	out := make([]policy.Policy, len(entry.policies))
	copy(out, entry.policies)
	return out, true
}

// PutActive stores the active-policy set under the cache TTL.
func (c *MemoryPolicyCache) PutActive(_ context.Context, walletID string, policies []policy.Policy) {
	stored := make([]policy.Policy, len(policies))
	copy(stored, policies)

	c.mu.Lock()
	c.entries[walletID] = cacheEntry{
		policies:  stored,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate drops the cached entry for a wallet.
func (c *MemoryPolicyCache) Invalidate(_ context.Context, walletID string) {
	c.mu.Lock()
	delete(c.entries, walletID)
	c.mu.Unlock()
}
