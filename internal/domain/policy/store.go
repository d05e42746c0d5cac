package policy

import (
	"context"
	"math/big"
	"time"
)

// Repository persists policies durably. Implementations must be atomic and
// read-after-write consistent. Absence is reported as ErrNotFound, never as
// a nil policy with nil error.
type Repository interface {
	// Insert stores a new policy and returns it with its assigned ID.
	Insert(ctx context.Context, p *Policy) (*Policy, error)
	// FindByID returns the policy with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Policy, error)
	// FindByWallet returns all policies for a wallet, active or not.
	FindByWallet(ctx context.Context, walletID string) ([]Policy, error)
	// FindActiveByWallet returns the active policies for a wallet,
	// in stored order.
	FindActiveByWallet(ctx context.Context, walletID string) ([]Policy, error)
	// Update replaces the stored policy with the same ID, or ErrNotFound.
	Update(ctx context.Context, p *Policy) (*Policy, error)
}

// Cache is a short-TTL read-through cache of a wallet's active-policy set.
// Cache failures never surface: a read failure is a miss, a write failure is
// logged and swallowed by the implementation. Unavailability may cost
// latency, never correctness.
type Cache interface {
	// GetActive returns the cached active-policy set, or ok=false on miss.
	GetActive(ctx context.Context, walletID string) ([]Policy, bool)
	// PutActive stores the active-policy set under the fixed cache TTL.
	PutActive(ctx context.Context, walletID string, policies []Policy)
	// Invalidate drops the cached entry for a wallet.
	Invalidate(ctx context.Context, walletID string)
}

// CounterStore is the shared counter store backing time-windowed spending
// limits. Concurrent evaluations on the same wallet/window race through it,
// so the committed increment must be atomic with its expiry.
type CounterStore interface {
	// Get returns the raw counter value, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes a key.
	Del(ctx context.Context, key string) error
	// IncrByExpire atomically increments the counter by delta and (re)sets
	// its TTL as a single transaction, returning the new value.
	IncrByExpire(ctx context.Context, key string, delta *big.Int, ttl time.Duration) (*big.Int, error)
}

// EventPublisher publishes evaluation outcomes, fire-and-forget. A publish
// failure is the caller's to log; it must never change a decision.
type EventPublisher interface {
	Publish(ctx context.Context, ev *Evaluation) error
}
