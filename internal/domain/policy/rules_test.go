package policy

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
)

func TestRulesJSONRoundTrip(t *testing.T) {
	original := Rules{
		SpendingLimitRule{
			MaxPerTransaction: big.NewInt(1_000_000_000),
			MaxPerWindow:      big.NewInt(5_000_000_000),
			WindowSeconds:     86400,
			TokenMint:         TokenSOL,
		},
		ProgramAllowlistRule{AllowedPrograms: []string{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}},
		TokenAllowlistRule{AllowedMints: []string{TokenSOL, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}},
		AddressBlocklistRule{BlockedAddresses: []string{"BadAddr111111111111111111111111111111111111"}},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Rules
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded) != len(original) {
		t.Fatalf("expected %d rules, got %d", len(original), len(decoded))
	}

	sl, ok := decoded[0].(SpendingLimitRule)
	if !ok {
		t.Fatalf("expected SpendingLimitRule, got %T", decoded[0])
	}
	if sl.MaxPerTransaction.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Errorf("max_per_transaction changed: %s", sl.MaxPerTransaction)
	}
	if sl.WindowSeconds != 86400 {
		t.Errorf("window seconds changed: %d", sl.WindowSeconds)
	}

	if _, ok := decoded[1].(ProgramAllowlistRule); !ok {
		t.Errorf("expected ProgramAllowlistRule, got %T", decoded[1])
	}
	if _, ok := decoded[2].(TokenAllowlistRule); !ok {
		t.Errorf("expected TokenAllowlistRule, got %T", decoded[2])
	}
	if _, ok := decoded[3].(AddressBlocklistRule); !ok {
		t.Errorf("expected AddressBlocklistRule, got %T", decoded[3])
	}
}

func TestRulesJSONPreservesHugeAmounts(t *testing.T) {
	// Larger than any int64 or float64 mantissa.
	huge := "123456789012345678901234567890123456789"
	maxTx, _ := new(big.Int).SetString(huge, 10)

	rules := Rules{
		SpendingLimitRule{
			MaxPerTransaction: maxTx,
			MaxPerWindow:      new(big.Int).Mul(maxTx, big.NewInt(10)),
			WindowSeconds:     3600,
			TokenMint:         TokenSOL,
		},
	}

	data, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"`+huge+`"`) {
		t.Fatalf("amount not encoded as a string: %s", data)
	}

	var decoded Rules
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	got := decoded[0].(SpendingLimitRule).MaxPerTransaction
	if got.String() != huge {
		t.Errorf("amount lost precision: want %s, got %s", huge, got)
	}
}

func TestRulesJSONWireFieldNames(t *testing.T) {
	rules := Rules{
		SpendingLimitRule{
			MaxPerTransaction: big.NewInt(100),
			MaxPerWindow:      big.NewInt(500),
			WindowSeconds:     60,
			TokenMint:         TokenSOL,
		},
	}

	data, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	for _, field := range []string{
		`"type":"spending_limit"`,
		`"max_per_transaction":"100"`,
		`"max_per_window":"500"`,
		`"window_duration_seconds":60`,
		`"token_mint":"SOL"`,
	} {
		if !strings.Contains(string(data), field) {
			t.Errorf("missing %s in %s", field, data)
		}
	}
}

func TestRulesUnmarshalUnknownType(t *testing.T) {
	var rules Rules
	err := json.Unmarshal([]byte(`[{"type":"teleport_funds"}]`), &rules)
	if err == nil {
		t.Fatal("expected error for unknown rule type")
	}
	if !strings.Contains(err.Error(), "teleport_funds") {
		t.Errorf("error should name the unknown type: %v", err)
	}
}

func TestRulesUnmarshalReservedKinds(t *testing.T) {
	data := []byte(`[
		{"type":"time_restriction","params":{"days":["sat","sun"]}},
		{"type":"human_approval"},
		{"type":"rate_limit","params":{"max_per_minute":5}}
	]`)

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}

	kinds := []RuleKind{KindTimeRestriction, KindHumanApproval, KindRateLimit}
	for i, want := range kinds {
		if rules[i].Kind() != want {
			t.Errorf("rules[%d]: want kind %s, got %s", i, want, rules[i].Kind())
		}
	}

	// Params must survive a round trip untouched.
	out, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"max_per_minute":5`) {
		t.Errorf("reserved rule params lost on round trip: %s", out)
	}
}

func TestRulesValidate(t *testing.T) {
	tests := []struct {
		name    string
		rules   Rules
		wantErr string
	}{
		{
			name:    "empty list",
			rules:   Rules{},
			wantErr: "at least one rule",
		},
		{
			name: "valid",
			rules: Rules{
				AddressBlocklistRule{BlockedAddresses: []string{"x"}},
			},
		},
		{
			name: "zero spending limit",
			rules: Rules{
				SpendingLimitRule{
					MaxPerTransaction: big.NewInt(0),
					MaxPerWindow:      big.NewInt(1),
					WindowSeconds:     60,
					TokenMint:         TokenSOL,
				},
			},
			wantErr: "max_per_transaction",
		},
		{
			name: "missing token mint",
			rules: Rules{
				SpendingLimitRule{
					MaxPerTransaction: big.NewInt(1),
					MaxPerWindow:      big.NewInt(1),
					WindowSeconds:     60,
				},
			},
			wantErr: "token_mint",
		},
		{
			name:    "empty allowlist",
			rules:   Rules{ProgramAllowlistRule{}},
			wantErr: "allowed_programs",
		},
		{
			name: "second rule invalid names index",
			rules: Rules{
				AddressBlocklistRule{BlockedAddresses: []string{"x"}},
				TokenAllowlistRule{},
			},
			wantErr: "rules[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "0", want: "0"},
		{input: "1000000000", want: "1000000000"},
		{input: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{input: "", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "1.5", wantErr: true},
		{input: "1e9", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
