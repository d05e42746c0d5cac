// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// ValidationError reports malformed input, rejected before reaching the
// engine. The field name gives the caller actionable detail.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// PolicyUpdate carries the fields an update replaces. Nil fields are left
// unchanged; provided rules replace the rule list wholesale.
type PolicyUpdate struct {
	Name  *string
	Rules policy.Rules
}

// PolicyService is the CRUD facade over the policy repository. It owns cache
// invalidation: every mutation invalidates the per-wallet cache entry
// synchronously before returning, so a caller that evaluates immediately
// after a write never sees stale policies.
type PolicyService struct {
	repo   policy.Repository
	cache  policy.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewPolicyService creates a PolicyService.
func NewPolicyService(repo policy.Repository, cache policy.Cache, logger *slog.Logger) *PolicyService {
	return &PolicyService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Create stores a new policy at version 1, active, and invalidates the
// wallet's cache entry after the store write commits.
func (s *PolicyService) Create(ctx context.Context, walletID, name string, rules policy.Rules) (*policy.Policy, error) {
	if walletID == "" {
		return nil, &ValidationError{Field: "wallet_id", Msg: "is required"}
	}
	if name == "" {
		return nil, &ValidationError{Field: "name", Msg: "is required"}
	}
	if err := rules.Validate(); err != nil {
		return nil, &ValidationError{Field: "rules", Msg: err.Error()}
	}

	now := s.now().UTC()
	p := &policy.Policy{
		WalletID:  walletID,
		Name:      name,
		Rules:     rules,
		Version:   1,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("insert policy: %w", err)
	}

	s.cache.Invalidate(ctx, walletID)

	s.logger.Info("policy created",
		"policy_id", stored.ID, "wallet_id", walletID, "rules", len(rules))
	return stored, nil
}

// Get returns a policy by id, or policy.ErrNotFound.
func (s *PolicyService) Get(ctx context.Context, id string) (*policy.Policy, error) {
	return s.repo.FindByID(ctx, id)
}

// Update merges the provided fields into an existing policy, increments its
// version, and invalidates the wallet's cache entry. Update never creates:
// an unknown id returns policy.ErrNotFound.
func (s *PolicyService) Update(ctx context.Context, id string, upd PolicyUpdate) (*policy.Policy, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, &ValidationError{Field: "name", Msg: "must not be empty"}
		}
		existing.Name = *upd.Name
	}
	if upd.Rules != nil {
		if err := upd.Rules.Validate(); err != nil {
			return nil, &ValidationError{Field: "rules", Msg: err.Error()}
		}
		existing.Rules = upd.Rules
	}

	existing.Version++
	existing.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}

	s.cache.Invalidate(ctx, updated.WalletID)

	s.logger.Info("policy updated",
		"policy_id", id, "wallet_id", updated.WalletID, "version", updated.Version)
	return updated, nil
}

// Activate marks a policy active and invalidates the wallet's cache entry.
func (s *PolicyService) Activate(ctx context.Context, id string) (*policy.Policy, error) {
	return s.setActive(ctx, id, true)
}

// Deactivate marks a policy inactive and invalidates the wallet's cache
// entry. Deactivation is the delete: policies are never physically removed.
func (s *PolicyService) Deactivate(ctx context.Context, id string) (*policy.Policy, error) {
	return s.setActive(ctx, id, false)
}

// setActive flips the active flag. Version semantics are unaffected.
func (s *PolicyService) setActive(ctx context.Context, id string, active bool) (*policy.Policy, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.IsActive = active
	existing.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}

	s.cache.Invalidate(ctx, updated.WalletID)

	s.logger.Info("policy active flag changed",
		"policy_id", id, "wallet_id", updated.WalletID, "is_active", active)
	return updated, nil
}

// ListForWallet returns all policies for a wallet, active or not.
// This path deliberately bypasses the cache, which only holds active sets.
func (s *PolicyService) ListForWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	return s.repo.FindByWallet(ctx, walletID)
}

// ListActiveForWallet returns the wallet's active policies, cache-first.
// On miss it queries the store, populates the cache, and returns.
func (s *PolicyService) ListActiveForWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	if policies, ok := s.cache.GetActive(ctx, walletID); ok {
		return policies, nil
	}

	policies, err := s.repo.FindActiveByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load active policies for wallet %s: %w", walletID, err)
	}

	s.cache.PutActive(ctx, walletID, policies)
	return policies, nil
}
