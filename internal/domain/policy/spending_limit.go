package policy

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// WindowKey builds the counter key for a wallet's windowed spend. The key is
// derived from the rule's token scope, not the transaction's mint, so a
// SOL-scoped rule accumulates every matching transfer into one budget.
func WindowKey(walletID, tokenMint string, windowStart int64) string {
	return fmt.Sprintf("spend:%s:%s:%d", walletID, tokenMint, windowStart)
}

func payloadMismatch(kind RuleKind) RuleResult {
	return RuleResult{
		RuleKind: kind,
		Decision: DecisionDeny,
		Reason:   fmt.Sprintf("rule payload does not match kind %q", kind),
	}
}

// SpendingLimitEvaluator enforces per-transaction and windowed spend caps.
// The window counter lives in the shared counter store and is committed only
// when this rule allows, so denied attempts never consume budget.
type SpendingLimitEvaluator struct{}

var _ RuleEvaluator = SpendingLimitEvaluator{}

func (SpendingLimitEvaluator) RuleKind() RuleKind { return KindSpendingLimit }

func (SpendingLimitEvaluator) Evaluate(ctx context.Context, r Rule, tx *TransactionDetails, ec *EvaluationContext) (RuleResult, error) {
	rule, ok := r.(SpendingLimitRule)
	if !ok {
		return payloadMismatch(KindSpendingLimit), nil
	}

	// A rule scoped to a specific mint only applies to transfers of that
	// mint. "SOL" rules apply universally.
	if rule.TokenMint != tx.TokenMint && rule.TokenMint != TokenSOL {
		return RuleResult{RuleKind: KindSpendingLimit, Decision: DecisionAllow}, nil
	}

	if tx.Amount.Cmp(rule.MaxPerTransaction) > 0 {
		return RuleResult{
			RuleKind: KindSpendingLimit,
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("amount %s exceeds per-transaction limit %s", tx.Amount, rule.MaxPerTransaction),
		}, nil
	}

	// Fixed wall-clock windows: every evaluation within the same bucket
	// shares one counter key.
	windowStart := (ec.Timestamp.Unix() / rule.WindowSeconds) * rule.WindowSeconds
	key := WindowKey(ec.WalletID, rule.TokenMint, windowStart)
	ttl := time.Duration(rule.WindowSeconds) * time.Second

	raw, found, err := ec.Counters.Get(ctx, key)
	if err != nil {
		return RuleResult{}, fmt.Errorf("read window counter %s: %w", key, err)
	}
	spent := new(big.Int)
	if found {
		if _, ok := spent.SetString(raw, 10); !ok {
			return RuleResult{}, fmt.Errorf("window counter %s holds non-integer value %q", key, raw)
		}
	}

	projected := new(big.Int).Add(spent, tx.Amount)
	if projected.Cmp(rule.MaxPerWindow) > 0 {
		return RuleResult{
			RuleKind: KindSpendingLimit,
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("window spend %s would exceed limit %s (already spent %s)", projected, rule.MaxPerWindow, spent),
		}, nil
	}

	if _, err := ec.Counters.IncrByExpire(ctx, key, tx.Amount, ttl); err != nil {
		return RuleResult{}, fmt.Errorf("commit window counter %s: %w", key, err)
	}

	return RuleResult{RuleKind: KindSpendingLimit, Decision: DecisionAllow}, nil
}
