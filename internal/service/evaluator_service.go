package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// FailSecureReason is the reason attached when evaluation infrastructure
// fails and the caller-facing boundary substitutes a deny.
const FailSecureReason = "Policy evaluation encountered an error — fail-secure deny"

// ReasonNoActivePolicies is returned for wallets with no active policies.
const ReasonNoActivePolicies = "No active policies"

// ReasonAllPassed is the default reason when every policy allowed and no
// rule contributed a reason of its own.
const ReasonAllPassed = "All policies passed"

// ActivePolicyLister supplies the active-policy set for a wallet.
// Satisfied by PolicyService; tests substitute fakes.
type ActivePolicyLister interface {
	ListActiveForWallet(ctx context.Context, walletID string) ([]policy.Policy, error)
}

// EvaluatorService orchestrates a full transaction decision across all
// active policies for a wallet, aggregates per-policy outcomes, and emits an
// evaluation event.
type EvaluatorService struct {
	policies  ActivePolicyLister
	engine    *policy.Engine
	counters  policy.CounterStore
	publisher policy.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEvaluatorService creates an EvaluatorService.
func NewEvaluatorService(
	policies ActivePolicyLister,
	engine *policy.Engine,
	counters policy.CounterStore,
	publisher policy.EventPublisher,
	logger *slog.Logger,
) *EvaluatorService {
	return &EvaluatorService{
		policies:  policies,
		engine:    engine,
		counters:  counters,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// EvaluateTransaction runs every active policy for the wallet against the
// transaction, in store-returned order. A deny from any single policy vetoes
// the transaction and stops further processing; require_approval accumulates
// across policies, sharing one lazily allocated approval id. An error return
// means the infrastructure failed to decide; the caller-facing boundary must
// convert that into a fail-secure deny, never an allow.
func (s *EvaluatorService) EvaluateTransaction(ctx context.Context, walletID string, tx *policy.TransactionDetails) (*policy.Evaluation, error) {
	policies, err := s.policies.ListActiveForWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}

	// One timestamp for the whole evaluation so every rule sees the same
	// window boundaries.
	ts := s.now().UTC()

	ev := &policy.Evaluation{
		ID:                uuid.New().String(),
		WalletID:          walletID,
		Decision:          policy.DecisionAllow,
		Reasons:           []string{},
		EvaluatedPolicies: []policy.EvaluatedPolicy{},
		EvaluatedAt:       ts,
	}

	if len(policies) == 0 {
		// Default-open when unconfigured.
		ev.Reasons = append(ev.Reasons, ReasonNoActivePolicies)
		s.publish(ctx, ev)
		return ev, nil
	}

	ec := &policy.EvaluationContext{
		WalletID:  walletID,
		Timestamp: ts,
		Counters:  s.counters,
	}

	for i := range policies {
		p := &policies[i]

		results, err := s.engine.EvaluateRules(ctx, p.Rules, tx, ec)
		if err != nil {
			return nil, fmt.Errorf("evaluate policy %s: %w", p.ID, err)
		}

		outcome := summarize(results)
		switch outcome.Decision {
		case policy.DecisionDeny:
			ev.EvaluatedPolicies = append(ev.EvaluatedPolicies, policy.EvaluatedPolicy{
				PolicyID: p.ID,
				Decision: policy.DecisionDeny,
				Reason:   outcome.Reason,
			})
			ev.Decision = policy.DecisionDeny
			ev.Reasons = append(ev.Reasons, outcome.Reason)
			// A deny from any single policy vetoes the whole transaction.
			s.publish(ctx, ev)
			return ev, nil
		case policy.DecisionRequireApproval:
			ev.EvaluatedPolicies = append(ev.EvaluatedPolicies, policy.EvaluatedPolicy{
				PolicyID: p.ID,
				Decision: policy.DecisionRequireApproval,
				Reason:   outcome.Reason,
			})
			if ev.Decision == policy.DecisionAllow {
				ev.Decision = policy.DecisionRequireApproval
			}
			if ev.ApprovalID == "" {
				ev.ApprovalID = uuid.New().String()
			}
			if outcome.Reason != "" {
				ev.Reasons = append(ev.Reasons, outcome.Reason)
			}
		default:
			ev.EvaluatedPolicies = append(ev.EvaluatedPolicies, policy.EvaluatedPolicy{
				PolicyID: p.ID,
				Decision: policy.DecisionAllow,
			})
		}
	}

	if ev.Decision == policy.DecisionAllow && len(ev.Reasons) == 0 {
		ev.Reasons = append(ev.Reasons, ReasonAllPassed)
	}

	s.publish(ctx, ev)
	return ev, nil
}

// policyOutcome is the per-policy aggregate of its rule results.
type policyOutcome struct {
	Decision policy.Decision
	Reason   string
}

// summarize folds one policy's rule results into a single outcome. The rule
// engine already short-circuits on deny, so a deny is always the last
// result. require_approval outranks allow within a policy.
func summarize(results []policy.RuleResult) policyOutcome {
	outcome := policyOutcome{Decision: policy.DecisionAllow}
	for _, r := range results {
		switch r.Decision {
		case policy.DecisionDeny:
			return policyOutcome{Decision: policy.DecisionDeny, Reason: r.Reason}
		case policy.DecisionRequireApproval:
			if outcome.Decision != policy.DecisionRequireApproval {
				outcome = policyOutcome{Decision: policy.DecisionRequireApproval, Reason: r.Reason}
			}
		}
	}
	return outcome
}

// publish emits the evaluation event, best-effort. The decision already
// stands; a publish failure is logged and never raised to the caller.
func (s *EvaluatorService) publish(ctx context.Context, ev *policy.Evaluation) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish evaluation event",
			"evaluation_id", ev.ID,
			"wallet_id", ev.WalletID,
			"decision", ev.Decision,
			"error", err,
		)
	}
}

// FailSecureEvaluation synthesizes the deny result substituted when
// evaluation infrastructure fails. An agent platform moving real funds must
// never read "we couldn't evaluate the rules" as "the rules don't apply".
func FailSecureEvaluation(walletID string) *policy.Evaluation {
	return &policy.Evaluation{
		ID:                uuid.New().String(),
		WalletID:          walletID,
		Decision:          policy.DecisionDeny,
		Reasons:           []string{FailSecureReason},
		EvaluatedPolicies: []policy.EvaluatedPolicy{},
		EvaluatedAt:       time.Now().UTC(),
	}
}
