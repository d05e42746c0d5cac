package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// RuleKind discriminates the rule payload variants.
type RuleKind string

const (
	KindSpendingLimit    RuleKind = "spending_limit"
	KindProgramAllowlist RuleKind = "program_allowlist"
	KindTokenAllowlist   RuleKind = "token_allowlist"
	KindAddressBlocklist RuleKind = "address_blocklist"

	// The following kinds are declared in the schema but have no registered
	// evaluator. The engine resolves them to a fail-secure deny.
	KindTimeRestriction RuleKind = "time_restriction"
	KindHumanApproval   RuleKind = "human_approval"
	KindRateLimit       RuleKind = "rate_limit"
)

const (
	// TokenSOL is the universal-token alias accepted wherever a mint is expected.
	TokenSOL = "SOL"
	// NativeSOLMint is the canonical wrapped-SOL mint address. "SOL" and this
	// address refer to the same asset and must be mutually satisfying.
	NativeSOLMint = "So11111111111111111111111111111111111111112"
)

// Rule is one constraint with typed parameters. Concrete variants are the
// structs below; dispatch is by Kind.
type Rule interface {
	Kind() RuleKind
	// Validate reports the first malformed field, or nil.
	Validate() error
}

// SpendingLimitRule caps per-transaction spend and cumulative spend within a
// fixed wall-clock window. All monetary fields are lamport-denominated
// arbitrary-precision integers.
type SpendingLimitRule struct {
	MaxPerTransaction *big.Int
	MaxPerWindow      *big.Int
	// WindowSeconds is the fixed window duration. Windows are bucketed by
	// wall-clock time: floor(t/window)*window, not rolling.
	WindowSeconds int64
	// TokenMint scopes the rule to one token. "SOL" applies universally.
	TokenMint string
}

func (SpendingLimitRule) Kind() RuleKind { return KindSpendingLimit }

func (r SpendingLimitRule) Validate() error {
	if r.MaxPerTransaction == nil || r.MaxPerTransaction.Sign() <= 0 {
		return errors.New("max_per_transaction must be a positive integer")
	}
	if r.MaxPerWindow == nil || r.MaxPerWindow.Sign() <= 0 {
		return errors.New("max_per_window must be a positive integer")
	}
	if r.WindowSeconds <= 0 {
		return errors.New("window_duration_seconds must be positive")
	}
	if r.TokenMint == "" {
		return errors.New("token_mint is required")
	}
	return nil
}

// ProgramAllowlistRule permits a transaction only when every invoked program
// id is in the allowed set.
type ProgramAllowlistRule struct {
	AllowedPrograms []string
}

func (ProgramAllowlistRule) Kind() RuleKind { return KindProgramAllowlist }

func (r ProgramAllowlistRule) Validate() error {
	if len(r.AllowedPrograms) == 0 {
		return errors.New("allowed_programs must not be empty")
	}
	return nil
}

// TokenAllowlistRule permits transfers only of listed token mints.
// "SOL" and the canonical native mint address alias each other.
type TokenAllowlistRule struct {
	AllowedMints []string
}

func (TokenAllowlistRule) Kind() RuleKind { return KindTokenAllowlist }

func (r TokenAllowlistRule) Validate() error {
	if len(r.AllowedMints) == 0 {
		return errors.New("allowed_mints must not be empty")
	}
	return nil
}

// AddressBlocklistRule denies transfers to listed destination addresses.
// Matching is exact and case-sensitive.
type AddressBlocklistRule struct {
	BlockedAddresses []string
}

func (AddressBlocklistRule) Kind() RuleKind { return KindAddressBlocklist }

func (r AddressBlocklistRule) Validate() error {
	if len(r.BlockedAddresses) == 0 {
		return errors.New("blocked_addresses must not be empty")
	}
	return nil
}

// TimeRestrictionRule is declared in the schema with no registered evaluator.
// Its parameters are carried opaquely so policies round-trip losslessly.
type TimeRestrictionRule struct {
	Params json.RawMessage
}

func (TimeRestrictionRule) Kind() RuleKind  { return KindTimeRestriction }
func (TimeRestrictionRule) Validate() error { return nil }

// HumanApprovalRule is declared in the schema with no registered evaluator.
type HumanApprovalRule struct {
	Params json.RawMessage
}

func (HumanApprovalRule) Kind() RuleKind  { return KindHumanApproval }
func (HumanApprovalRule) Validate() error { return nil }

// RateLimitRule is declared in the schema with no registered evaluator.
type RateLimitRule struct {
	Params json.RawMessage
}

func (RateLimitRule) Kind() RuleKind  { return KindRateLimit }
func (RateLimitRule) Validate() error { return nil }

// Rules is an ordered rule list. Evaluation order is list order.
type Rules []Rule

// Validate reports the first invalid rule, or nil.
func (rs Rules) Validate() error {
	if len(rs) == 0 {
		return errors.New("a policy must have at least one rule")
	}
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rules[%d] (%s): %w", i, r.Kind(), err)
		}
	}
	return nil
}

// ParseAmount parses a decimal-string monetary value into a non-negative
// arbitrary-precision integer. Monetary values never pass through floating
// point at any boundary.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("amount is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return v, nil
}

// Wire representations. Monetary fields travel as decimal strings so no
// reader can round them through a float.

type spendingLimitWire struct {
	Type              RuleKind `json:"type"`
	MaxPerTransaction string   `json:"max_per_transaction"`
	MaxPerWindow      string   `json:"max_per_window"`
	WindowSeconds     int64    `json:"window_duration_seconds"`
	TokenMint         string   `json:"token_mint"`
}

type programAllowlistWire struct {
	Type            RuleKind `json:"type"`
	AllowedPrograms []string `json:"allowed_programs"`
}

type tokenAllowlistWire struct {
	Type         RuleKind `json:"type"`
	AllowedMints []string `json:"allowed_mints"`
}

type addressBlocklistWire struct {
	Type             RuleKind `json:"type"`
	BlockedAddresses []string `json:"blocked_addresses"`
}

type reservedWire struct {
	Type   RuleKind        `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON encodes the ordered rule list as an array of tagged objects.
func (rs Rules) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(rs))
	for i, r := range rs {
		raw, err := marshalRule(r)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func marshalRule(r Rule) ([]byte, error) {
	switch v := r.(type) {
	case SpendingLimitRule:
		return json.Marshal(spendingLimitWire{
			Type:              KindSpendingLimit,
			MaxPerTransaction: v.MaxPerTransaction.String(),
			MaxPerWindow:      v.MaxPerWindow.String(),
			WindowSeconds:     v.WindowSeconds,
			TokenMint:         v.TokenMint,
		})
	case ProgramAllowlistRule:
		return json.Marshal(programAllowlistWire{Type: KindProgramAllowlist, AllowedPrograms: v.AllowedPrograms})
	case TokenAllowlistRule:
		return json.Marshal(tokenAllowlistWire{Type: KindTokenAllowlist, AllowedMints: v.AllowedMints})
	case AddressBlocklistRule:
		return json.Marshal(addressBlocklistWire{Type: KindAddressBlocklist, BlockedAddresses: v.BlockedAddresses})
	case TimeRestrictionRule:
		return json.Marshal(reservedWire{Type: KindTimeRestriction, Params: v.Params})
	case HumanApprovalRule:
		return json.Marshal(reservedWire{Type: KindHumanApproval, Params: v.Params})
	case RateLimitRule:
		return json.Marshal(reservedWire{Type: KindRateLimit, Params: v.Params})
	default:
		return nil, fmt.Errorf("unknown rule kind %q", r.Kind())
	}
}

// UnmarshalJSON decodes an array of tagged rule objects, preserving order.
func (rs *Rules) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Rules, 0, len(raws))
	for i, raw := range raws {
		r, err := unmarshalRule(raw)
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	*rs = out
	return nil
}

func unmarshalRule(raw []byte) (Rule, error) {
	var tag struct {
		Type RuleKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case KindSpendingLimit:
		var w spendingLimitWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		maxTx, err := ParseAmount(w.MaxPerTransaction)
		if err != nil {
			return nil, fmt.Errorf("max_per_transaction: %w", err)
		}
		maxWin, err := ParseAmount(w.MaxPerWindow)
		if err != nil {
			return nil, fmt.Errorf("max_per_window: %w", err)
		}
		return SpendingLimitRule{
			MaxPerTransaction: maxTx,
			MaxPerWindow:      maxWin,
			WindowSeconds:     w.WindowSeconds,
			TokenMint:         w.TokenMint,
		}, nil
	case KindProgramAllowlist:
		var w programAllowlistWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ProgramAllowlistRule{AllowedPrograms: w.AllowedPrograms}, nil
	case KindTokenAllowlist:
		var w tokenAllowlistWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TokenAllowlistRule{AllowedMints: w.AllowedMints}, nil
	case KindAddressBlocklist:
		var w addressBlocklistWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return AddressBlocklistRule{BlockedAddresses: w.BlockedAddresses}, nil
	case KindTimeRestriction, KindHumanApproval, KindRateLimit:
		var w reservedWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		switch tag.Type {
		case KindTimeRestriction:
			return TimeRestrictionRule{Params: w.Params}, nil
		case KindHumanApproval:
			return HumanApprovalRule{Params: w.Params}, nil
		default:
			return RateLimitRule{Params: w.Params}, nil
		}
	default:
		return nil, fmt.Errorf("unknown rule type %q", tag.Type)
	}
}
