package policy

import (
	"context"
	"fmt"
)

// ProgramAllowlistEvaluator denies a transaction that invokes any program id
// outside the allowed set. A transaction invoking no programs passes.
type ProgramAllowlistEvaluator struct{}

var _ RuleEvaluator = ProgramAllowlistEvaluator{}

func (ProgramAllowlistEvaluator) RuleKind() RuleKind { return KindProgramAllowlist }

func (ProgramAllowlistEvaluator) Evaluate(_ context.Context, r Rule, tx *TransactionDetails, _ *EvaluationContext) (RuleResult, error) {
	rule, ok := r.(ProgramAllowlistRule)
	if !ok {
		return payloadMismatch(KindProgramAllowlist), nil
	}

	allowed := make(map[string]struct{}, len(rule.AllowedPrograms))
	for _, p := range rule.AllowedPrograms {
		allowed[p] = struct{}{}
	}
	for _, p := range tx.ProgramIDs {
		if _, ok := allowed[p]; !ok {
			return RuleResult{
				RuleKind: KindProgramAllowlist,
				Decision: DecisionDeny,
				Reason:   fmt.Sprintf("program %s is not in the allowlist", p),
			}, nil
		}
	}
	return RuleResult{RuleKind: KindProgramAllowlist, Decision: DecisionAllow}, nil
}

func isNativeSOL(mint string) bool {
	return mint == TokenSOL || mint == NativeSOLMint
}

// TokenAllowlistEvaluator denies transfers of unlisted token mints. "SOL" and
// the canonical native mint address are interchangeable on both sides.
type TokenAllowlistEvaluator struct{}

var _ RuleEvaluator = TokenAllowlistEvaluator{}

func (TokenAllowlistEvaluator) RuleKind() RuleKind { return KindTokenAllowlist }

func (TokenAllowlistEvaluator) Evaluate(_ context.Context, r Rule, tx *TransactionDetails, _ *EvaluationContext) (RuleResult, error) {
	rule, ok := r.(TokenAllowlistRule)
	if !ok {
		return payloadMismatch(KindTokenAllowlist), nil
	}

	listed := make(map[string]struct{}, len(rule.AllowedMints))
	for _, m := range rule.AllowedMints {
		listed[m] = struct{}{}
	}

	if _, ok := listed[tx.TokenMint]; ok {
		return RuleResult{RuleKind: KindTokenAllowlist, Decision: DecisionAllow}, nil
	}
	if isNativeSOL(tx.TokenMint) {
		if _, ok := listed[TokenSOL]; ok {
			return RuleResult{RuleKind: KindTokenAllowlist, Decision: DecisionAllow}, nil
		}
		if _, ok := listed[NativeSOLMint]; ok {
			return RuleResult{RuleKind: KindTokenAllowlist, Decision: DecisionAllow}, nil
		}
	}

	return RuleResult{
		RuleKind: KindTokenAllowlist,
		Decision: DecisionDeny,
		Reason:   fmt.Sprintf("token %s is not in the allowlist", tx.TokenMint),
	}, nil
}
