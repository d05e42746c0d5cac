package policy

import (
	"context"
	"fmt"
	"log/slog"
)

// RuleEvaluator evaluates one rule kind against a transaction. Evaluators are
// stateless; per-call state travels in the EvaluationContext.
type RuleEvaluator interface {
	RuleKind() RuleKind
	Evaluate(ctx context.Context, r Rule, tx *TransactionDetails, ec *EvaluationContext) (RuleResult, error)
}

// Engine dispatches rules to their registered evaluators. A rule kind with no
// registered evaluator resolves to a deny, never a silent allow.
type Engine struct {
	evaluators map[RuleKind]RuleEvaluator
	logger     *slog.Logger
}

// NewEngine creates an engine with the given evaluators. Later evaluators
// override earlier ones for the same kind.
func NewEngine(logger *slog.Logger, evaluators ...RuleEvaluator) *Engine {
	m := make(map[RuleKind]RuleEvaluator, len(evaluators))
	for _, e := range evaluators {
		m[e.RuleKind()] = e
	}
	return &Engine{evaluators: m, logger: logger}
}

// DefaultEvaluators returns the built-in evaluator set.
func DefaultEvaluators() []RuleEvaluator {
	return []RuleEvaluator{
		SpendingLimitEvaluator{},
		ProgramAllowlistEvaluator{},
		TokenAllowlistEvaluator{},
		AddressBlocklistEvaluator{},
	}
}

// EvaluateRule evaluates a single rule. An unregistered kind is a deny: a
// rule the engine cannot interpret must not wave a transaction through.
func (e *Engine) EvaluateRule(ctx context.Context, r Rule, tx *TransactionDetails, ec *EvaluationContext) (RuleResult, error) {
	ev, ok := e.evaluators[r.Kind()]
	if !ok {
		e.logger.Warn("no evaluator registered for rule kind, denying",
			"rule_kind", string(r.Kind()),
			"wallet_id", ec.WalletID,
		)
		return RuleResult{
			RuleKind: r.Kind(),
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("no evaluator registered for rule type %q", r.Kind()),
		}, nil
	}

	res, err := ev.Evaluate(ctx, r, tx, ec)
	if err != nil {
		return RuleResult{}, fmt.Errorf("evaluate %s rule: %w", r.Kind(), err)
	}
	return res, nil
}

// EvaluateRules evaluates the rules in order, stopping after the first deny.
// A require_approval result does not stop evaluation: a later rule may still
// deny outright.
func (e *Engine) EvaluateRules(ctx context.Context, rules Rules, tx *TransactionDetails, ec *EvaluationContext) ([]RuleResult, error) {
	results := make([]RuleResult, 0, len(rules))
	for _, r := range rules {
		res, err := e.EvaluateRule(ctx, r, tx, ec)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		if res.Decision == DecisionDeny {
			break
		}
	}
	return results, nil
}
