package policy

import "time"

// EvaluationContext carries the per-evaluation state shared by every rule in
// one evaluation call.
type EvaluationContext struct {
	// WalletID is the wallet under evaluation.
	WalletID string
	// Timestamp is captured once per evaluation and reused by every rule, so
	// window-boundary math is consistent within one call.
	Timestamp time.Time
	// Counters is the shared counter store handle for windowed spend tracking.
	Counters CounterStore
}
