package policy

import (
	"context"
	"fmt"
)

// AddressBlocklistEvaluator denies transfers to blocked destinations.
// Base58 addresses are case-significant, so matching is exact with no
// normalization.
type AddressBlocklistEvaluator struct{}

var _ RuleEvaluator = AddressBlocklistEvaluator{}

func (AddressBlocklistEvaluator) RuleKind() RuleKind { return KindAddressBlocklist }

func (AddressBlocklistEvaluator) Evaluate(_ context.Context, r Rule, tx *TransactionDetails, _ *EvaluationContext) (RuleResult, error) {
	rule, ok := r.(AddressBlocklistRule)
	if !ok {
		return payloadMismatch(KindAddressBlocklist), nil
	}

	for _, addr := range rule.BlockedAddresses {
		if addr == tx.DestinationAddress {
			return RuleResult{
				RuleKind: KindAddressBlocklist,
				Decision: DecisionDeny,
				Reason:   fmt.Sprintf("destination address %s is blocked", tx.DestinationAddress),
			}, nil
		}
	}
	return RuleResult{RuleKind: KindAddressBlocklist, Decision: DecisionAllow}, nil
}
