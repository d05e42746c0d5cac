package memory

import (
	"context"
	"sync"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

// MemoryPublisher implements policy.EventPublisher by recording published
// evaluations. For development/testing only.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []policy.Evaluation
	err    error
}

// NewPublisher creates a new in-memory event publisher.
func NewPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the evaluation, or returns the configured failure.
func (p *MemoryPublisher) Publish(ctx context.Context, ev *policy.Evaluation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *ev)
	return nil
}

// Events returns the evaluations published so far.
func (p *MemoryPublisher) Events() []policy.Evaluation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]policy.Evaluation, len(p.events))
	copy(out, p.events)
	return out
}

// FailWith makes subsequent Publish calls return err. Tests use this to
// verify that publish failures never change a decision.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Compile-time interface verification.
var _ policy.EventPublisher = (*MemoryPublisher)(nil)
