// Package approval implements the human approval gate for remediation steps.
//
// The gate is a single-slot rendezvous: the orchestrator parks on Ask until
// a human delivers exactly one decision. There is no timeout; only a context
// cancellation or an explicit Resolve releases the waiter.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Decision is a human's answer to one proposed action.
type Decision string

const (
	Approve Decision = "approve"
	Deny    Decision = "deny"
	Skip    Decision = "skip"
)

// ErrPending is returned when a second approval request is issued while one
// is already outstanding. Callers must serialize requests.
var ErrPending = errors.New("approval request already pending")

// ParseDecision validates a wire-format decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case Approve, Deny, Skip:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("unknown approval decision %q", s)
	}
}

// Request describes the action awaiting approval. The command descriptor is
// opaque and shown to the human verbatim.
type Request struct {
	Prompt  string `json:"prompt"`
	Command string `json:"command"`
}

// Gate suspends the orchestrator until a human responds.
type Gate struct {
	mu      sync.Mutex
	pending chan Decision
	request *Request
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Ask parks until a decision is delivered via Resolve or ctx is cancelled.
// At most one request may be outstanding; a concurrent second request
// returns ErrPending.
func (g *Gate) Ask(ctx context.Context, prompt, command string) (Decision, error) {
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return "", ErrPending
	}
	ch := make(chan Decision, 1)
	g.pending = ch
	g.request = &Request{Prompt: prompt, Command: command}
	g.mu.Unlock()

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		g.clear(ch)
		return "", ctx.Err()
	}
}

// Resolve delivers a decision to the pending request and wakes its waiter.
// Delivering with no request outstanding is a no-op; Resolve reports
// whether a waiter was released.
func (g *Gate) Resolve(d Decision) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return false
	}
	g.pending <- d
	g.pending = nil
	g.request = nil
	return true
}

// Pending returns the outstanding request, or nil when the gate is idle.
func (g *Gate) Pending() *Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.request == nil {
		return nil
	}
	req := *g.request
	return &req
}

// clear removes a request slot after its waiter gave up. The slot is only
// cleared if it still belongs to the abandoned waiter: a Resolve may have
// raced the cancellation and claimed it first.
func (g *Gate) clear(ch chan Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == ch {
		g.pending = nil
		g.request = nil
	}
}
