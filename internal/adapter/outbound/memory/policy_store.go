// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// MemoryPolicyStore implements policy.Repository with an in-memory map.
// Thread-safe for concurrent access. For development/testing only.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*policy.Policy // ID -> Policy
	byWallet map[string][]string       // walletID -> policy IDs in insert order
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		policies: make(map[string]*policy.Policy),
		byWallet: make(map[string][]string),
	}
}

// Insert stores a new policy, assigning an ID when the caller left it empty.
func (s *MemoryPolicyStore) Insert(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyPolicy(p)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	s.policies[stored.ID] = stored
	s.byWallet[stored.WalletID] = append(s.byWallet[stored.WalletID], stored.ID)
	return copyPolicy(stored), nil
}

// FindByID returns the policy with the given id, or policy.ErrNotFound.
func (s *MemoryPolicyStore) FindByID(ctx context.Context, id string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, policy.ErrNotFound
	}
	return copyPolicy(p), nil
}

// FindByWallet returns all policies for a wallet in insert order.
func (s *MemoryPolicyStore) FindByWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byWallet[walletID]
	result := make([]policy.Policy, 0, len(ids))
	for _, id := range ids {
		result = append(result, *copyPolicy(s.policies[id]))
	}
	return result, nil
}

// FindActiveByWallet returns the active policies for a wallet in insert order.
func (s *MemoryPolicyStore) FindActiveByWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byWallet[walletID]
	var result []policy.Policy
	for _, id := range ids {
		if p := s.policies[id]; p.IsActive {
			result = append(result, *copyPolicy(p))
		}
	}
	return result, nil
}

// Update replaces the stored policy with the same ID, or policy.ErrNotFound.
func (s *MemoryPolicyStore) Update(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[p.ID]
	if !ok {
		return nil, policy.ErrNotFound
	}

	stored := copyPolicy(p)
	// WalletID is immutable after creation.
	stored.WalletID = existing.WalletID
	s.policies[p.ID] = stored
	return copyPolicy(stored), nil
}

// copyPolicy creates a copy of a policy so callers cannot mutate stored
// state. Rule payloads are value types; copying the slice suffices.
func copyPolicy(p *policy.Policy) *policy.Policy {
	policyCopy := &policy.Policy{
		ID:        p.ID,
		WalletID:  p.WalletID,
		Name:      p.Name,
		Version:   p.Version,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Rules:     make(policy.Rules, len(p.Rules)),
	}
	copy(policyCopy.Rules, p.Rules)
	return policyCopy
}

// Compile-time interface verification.
var _ policy.Repository = (*MemoryPolicyStore)(nil)
