package memory

import (
	"context"
	"testing"
	"time"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

func TestPolicyCachePutGetInvalidate(t *testing.T) {
	cache := NewPolicyCache(time.Minute)
	ctx := context.Background()

	if _, ok := cache.GetActive(ctx, "wallet-1"); ok {
		t.Fatal("empty cache returned a hit")
	}

	cache.PutActive(ctx, "wallet-1", []policy.Policy{*samplePolicy("wallet-1", "limits")})
	got, ok := cache.GetActive(ctx, "wallet-1")
	if !ok || len(got) != 1 {
		t.Fatalf("expected cached set, got ok=%v len=%d", ok, len(got))
	}

	cache.Invalidate(ctx, "wallet-1")
	if _, ok := cache.GetActive(ctx, "wallet-1"); ok {
		t.Error("invalidated entry still served")
	}
}

func TestPolicyCacheTTLExpiry(t *testing.T) {
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	now := start
	cache := NewPolicyCacheAt(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	cache.PutActive(ctx, "wallet-1", []policy.Policy{*samplePolicy("wallet-1", "limits")})

	now = start.Add(59 * time.Second)
	if _, ok := cache.GetActive(ctx, "wallet-1"); !ok {
		t.Fatal("entry expired early")
	}

	now = start.Add(2 * time.Minute)
	if _, ok := cache.GetActive(ctx, "wallet-1"); ok {
		t.Error("entry survived its TTL")
	}
}

func TestPolicyCacheReturnsCopies(t *testing.T) {
	cache := NewPolicyCache(time.Minute)
	ctx := context.Background()

	cache.PutActive(ctx, "wallet-1", []policy.Policy{*samplePolicy("wallet-1", "limits")})

	got, _ := cache.GetActive(ctx, "wallet-1")
	got[0].Name = "mutated"

	again, _ := cache.GetActive(ctx, "wallet-1")
	if again[0].Name != "limits" {
		t.Error("cache handed out a shared slice")
	}
}
