package policy

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"
)

// fakeCounterStore is a map-backed CounterStore with switchable failures.
type fakeCounterStore struct {
	values map[string]string
	getErr error
	incErr error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{values: make(map[string]string)}
}

func (s *fakeCounterStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeCounterStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.values[key] = value
	return nil
}

func (s *fakeCounterStore) Del(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func (s *fakeCounterStore) IncrByExpire(_ context.Context, key string, delta *big.Int, _ time.Duration) (*big.Int, error) {
	if s.incErr != nil {
		return nil, s.incErr
	}
	current := new(big.Int)
	if v, ok := s.values[key]; ok {
		current.SetString(v, 10)
	}
	current.Add(current, delta)
	s.values[key] = current.String()
	return current, nil
}

func spendingRule() SpendingLimitRule {
	return SpendingLimitRule{
		MaxPerTransaction: big.NewInt(1000),
		MaxPerWindow:      big.NewInt(3000),
		WindowSeconds:     3600,
		TokenMint:         TokenSOL,
	}
}

func spendingContext(counters CounterStore) *EvaluationContext {
	return &EvaluationContext{
		WalletID:  "wallet-1",
		Timestamp: time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC),
		Counters:  counters,
	}
}

func solTx(amount int64) *TransactionDetails {
	return &TransactionDetails{
		WalletID:  "wallet-1",
		Amount:    big.NewInt(amount),
		TokenMint: TokenSOL,
	}
}

func TestSpendingLimitPerTransaction(t *testing.T) {
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	// Exactly at the limit passes.
	res, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1000), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionAllow {
		t.Fatalf("amount at limit must allow, got %s (%s)", res.Decision, res.Reason)
	}

	// One lamport over denies.
	res, err = ev.Evaluate(context.Background(), spendingRule(), solTx(1001), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionDeny {
		t.Fatalf("amount over limit must deny, got %s", res.Decision)
	}
	if !strings.Contains(res.Reason, "per-transaction limit") {
		t.Errorf("reason should mention the per-transaction limit: %q", res.Reason)
	}
}

func TestSpendingLimitWindowAccumulates(t *testing.T) {
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	// Three transfers of 1000 fill the 3000 window exactly.
	for i := 0; i < 3; i++ {
		res, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1000), ec)
		if err != nil {
			t.Fatalf("transfer %d: unexpected error: %v", i, err)
		}
		if res.Decision != DecisionAllow {
			t.Fatalf("transfer %d: expected allow, got %s (%s)", i, res.Decision, res.Reason)
		}
	}

	// The fourth is denied even though it passes the per-transaction cap.
	res, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionDeny {
		t.Fatalf("expected window deny, got %s", res.Decision)
	}
	if !strings.Contains(res.Reason, "already spent 3000") {
		t.Errorf("reason should report spent total: %q", res.Reason)
	}
}

func TestSpendingLimitDenyDoesNotConsumeBudget(t *testing.T) {
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	// Denied per-transaction attempt must not touch the counter.
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(5000), ec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.values) != 0 {
		t.Fatalf("denied attempt committed a counter: %v", store.values)
	}

	// A full-window transfer still fits afterwards.
	res, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1000), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionAllow {
		t.Fatalf("expected allow after denied attempt, got %s (%s)", res.Decision, res.Reason)
	}
}

func TestSpendingLimitWindowKeyIsBucketed(t *testing.T) {
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(100), ec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	windowStart := (ec.Timestamp.Unix() / 3600) * 3600
	wantKey := WindowKey("wallet-1", TokenSOL, windowStart)
	if _, ok := store.values[wantKey]; !ok {
		t.Fatalf("expected counter under %s, have %v", wantKey, store.values)
	}

	// Same bucket one minute later shares the counter.
	later := spendingContext(store)
	later.Timestamp = ec.Timestamp.Add(time.Minute)
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(100), later); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.values[wantKey] != "200" {
		t.Errorf("same-bucket spend not accumulated: %v", store.values)
	}

	// Next bucket gets a fresh counter.
	next := spendingContext(store)
	next.Timestamp = time.Unix(windowStart+3600, 0).UTC()
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(100), next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextKey := WindowKey("wallet-1", TokenSOL, windowStart+3600)
	if store.values[nextKey] != "100" {
		t.Errorf("new bucket should start fresh: %v", store.values)
	}
}

func TestSpendingLimitTokenScoping(t *testing.T) {
	usdc := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	rule := SpendingLimitRule{
		MaxPerTransaction: big.NewInt(10),
		MaxPerWindow:      big.NewInt(10),
		WindowSeconds:     3600,
		TokenMint:         usdc,
	}
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	// A USDC-scoped rule ignores SOL transfers entirely.
	res, err := ev.Evaluate(context.Background(), rule, solTx(1_000_000), ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionAllow {
		t.Fatalf("out-of-scope token must allow, got %s", res.Decision)
	}
	if len(store.values) != 0 {
		t.Errorf("out-of-scope transfer must not consume budget: %v", store.values)
	}

	// But it caps matching transfers.
	usdcTx := &TransactionDetails{WalletID: "wallet-1", Amount: big.NewInt(11), TokenMint: usdc}
	res, err = ev.Evaluate(context.Background(), rule, usdcTx, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionDeny {
		t.Errorf("in-scope over-limit transfer must deny, got %s", res.Decision)
	}
}

func TestSpendingLimitSOLRuleAppliesToAllTokens(t *testing.T) {
	ev := SpendingLimitEvaluator{}
	store := newFakeCounterStore()
	ec := spendingContext(store)

	usdcTx := &TransactionDetails{
		WalletID:  "wallet-1",
		Amount:    big.NewInt(2000),
		TokenMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
	res, err := ev.Evaluate(context.Background(), spendingRule(), usdcTx, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != DecisionDeny {
		t.Errorf("SOL-scoped rule must apply universally, got %s", res.Decision)
	}
}

func TestSpendingLimitCounterFailuresSurface(t *testing.T) {
	ev := SpendingLimitEvaluator{}

	store := newFakeCounterStore()
	store.getErr = errors.New("connection refused")
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1), spendingContext(store)); err == nil {
		t.Fatal("counter read failure must surface as an error")
	}

	store = newFakeCounterStore()
	store.incErr = errors.New("connection refused")
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1), spendingContext(store)); err == nil {
		t.Fatal("counter commit failure must surface as an error")
	}

	store = newFakeCounterStore()
	store.values[WindowKey("wallet-1", TokenSOL, (spendingContext(store).Timestamp.Unix()/3600)*3600)] = "garbage"
	if _, err := ev.Evaluate(context.Background(), spendingRule(), solTx(1), spendingContext(store)); err == nil {
		t.Fatal("corrupt counter value must surface as an error")
	}
}
