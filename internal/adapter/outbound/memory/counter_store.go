package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// MemoryCounterStore implements policy.CounterStore with a mutex-guarded map.
// Expiry is checked lazily on access. For development/testing only; a shared
// deployment needs the Redis-backed store so concurrent evaluators see one
// counter.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]counterEntry
	now     func() time.Time
}

type counterEntry struct {
	value     *big.Int
	expiresAt time.Time
}

// NewCounterStore creates a new in-memory counter store.
func NewCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]counterEntry),
		now:     time.Now,
	}
}

// NewCounterStoreAt creates a counter store with an injected clock, so tests
// can cross window boundaries without sleeping.
func NewCounterStoreAt(now func() time.Time) *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]counterEntry),
		now:     now,
	}
}

// Get returns the raw counter value, or ok=false when absent or expired.
func (s *MemoryCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveEntry(key)
	if !ok {
		return "", false, nil
	}
	return e.value.String(), true, nil
}

// Set stores a value with a TTL.
func (s *MemoryCounterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return fmt.Errorf("value %q is not a base-10 integer", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = counterEntry{value: v, expiresAt: s.now().Add(ttl)}
	return nil
}

// Del removes a key.
func (s *MemoryCounterStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// IncrByExpire increments the counter and resets its TTL under one lock,
// matching the single-transaction contract of the Redis store.
func (s *MemoryCounterStore) IncrByExpire(ctx context.Context, key string, delta *big.Int, ttl time.Duration) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := new(big.Int)
	if e, ok := s.liveEntry(key); ok {
		current.Set(e.value)
	}
	current.Add(current, delta)
	s.entries[key] = counterEntry{value: current, expiresAt: s.now().Add(ttl)}
	return new(big.Int).Set(current), nil
}

// Size returns the number of live keys. Useful for tests.
func (s *MemoryCounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if _, ok := s.liveEntry(key); ok {
			n++
		}
	}
	return n
}

// liveEntry returns the entry for key, dropping it when expired.
// Must be called with the lock held.
func (s *MemoryCounterStore) liveEntry(key string) (counterEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return counterEntry{}, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return counterEntry{}, false
	}
	return e, true
}

// Compile-time interface verification.
var _ policy.CounterStore = (*MemoryCounterStore)(nil)
