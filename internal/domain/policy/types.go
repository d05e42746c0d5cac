// Package policy contains domain types for wallet transaction authorization.
package policy

import (
	"errors"
	"math/big"
	"time"
)

// Decision is the outcome of evaluating a rule, a policy, or a full transaction.
type Decision string

const (
	// DecisionAllow permits the transaction to proceed to signing.
	DecisionAllow Decision = "allow"
	// DecisionDeny blocks the transaction.
	DecisionDeny Decision = "deny"
	// DecisionRequireApproval blocks the transaction pending human approval.
	DecisionRequireApproval Decision = "require_approval"
)

// ErrNotFound is returned when a policy does not exist in the repository.
var ErrNotFound = errors.New("policy not found")

// Policy is a named, versioned, ordered set of rules bound to one wallet.
// Rule order is significant: rules are evaluated in the order stored here.
type Policy struct {
	// ID is the unique identifier for this policy, assigned on insert.
	ID string `json:"id"`
	// WalletID is the owning wallet. Immutable after creation.
	WalletID string `json:"wallet_id"`
	// Name is a human-readable name for this policy.
	Name string `json:"name"`
	// Rules are the authorization rules, evaluated in order.
	// A policy always has at least one rule.
	Rules Rules `json:"rules"`
	// Version starts at 1 and increments on every successful update.
	Version int `json:"version"`
	// IsActive indicates whether this policy participates in evaluation.
	// Deactivation is the delete: policies are never physically removed.
	IsActive bool `json:"is_active"`
	// CreatedAt is when the policy was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the policy was last modified (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionDetails is the immutable evaluation input describing one
// proposed transaction. Constructed per evaluation call, never persisted.
type TransactionDetails struct {
	// WalletID is the wallet proposing the transaction.
	WalletID string
	// Amount is the transfer amount in lamports. Always arbitrary precision,
	// transmitted as a decimal string on every wire boundary.
	Amount *big.Int
	// TokenMint is the mint address of the token being transferred,
	// or "SOL" for native transfers.
	TokenMint string
	// DestinationAddress is the receiving address.
	DestinationAddress string
	// ProgramIDs are the program ids invoked by the transaction, in order.
	ProgramIDs []string
	// Instructions is the opaque instruction payload. Not interpreted here.
	Instructions []map[string]any
}

// RuleResult is the outcome of evaluating a single rule.
type RuleResult struct {
	RuleKind RuleKind `json:"rule_kind"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// EvaluatedPolicy records the per-policy outcome within an evaluation.
type EvaluatedPolicy struct {
	PolicyID string   `json:"policy_id"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// Evaluation is the aggregated outcome of running all active policies for a
// wallet against one transaction. Returned to the caller and published as an
// event; never persisted by this core.
type Evaluation struct {
	// ID is an opaque identifier for this evaluation run.
	ID string `json:"id"`
	// WalletID is the wallet the evaluation ran for.
	WalletID string `json:"wallet_id"`
	// Decision is the final aggregated decision.
	// Precedence is strictly deny > require_approval > allow.
	Decision Decision `json:"decision"`
	// Reasons are the collected reasons, in evaluation order.
	Reasons []string `json:"reasons"`
	// ApprovalID is the opaque approval token, set only when the decision is
	// require_approval. Allocated at most once per evaluation.
	ApprovalID string `json:"approval_id,omitempty"`
	// EvaluatedPolicies are the per-policy outcomes, in evaluation order.
	// Stops at the first denying policy.
	EvaluatedPolicies []EvaluatedPolicy `json:"evaluated_policies"`
	// EvaluatedAt is the timestamp captured for this evaluation.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
