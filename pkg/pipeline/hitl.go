package pipeline

import (
	"context"
	"sync"
	"time"
)

// HITLGate is the bounded-wait human approval point after planning. The
// gate fails open: timeout and cancellation both approve, so an unattended
// deployment never stalls on a low planning score.
type HITLGate struct {
	mu      sync.Mutex
	waiters map[string]chan bool
}

// NewHITLGate returns a gate with no pending waits.
func NewHITLGate() *HITLGate {
	return &HITLGate{waiters: make(map[string]chan bool)}
}

// Decide delivers a human verdict to the pipeline waiting on threadID.
// It reports whether a pipeline was actually waiting.
func (g *HITLGate) Decide(threadID string, approve bool) bool {
	g.mu.Lock()
	ch, ok := g.waiters[threadID]
	if ok {
		delete(g.waiters, threadID)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	ch <- approve
	return true
}

// Pending returns the thread ids currently waiting on a decision.
func (g *HITLGate) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.waiters))
	for id := range g.waiters {
		out = append(out, id)
	}
	return out
}

// Await blocks until a decision arrives for threadID, the timeout elapses
// or the context is cancelled. Timeout and cancellation auto-approve; the
// second return reports whether the approval was automatic.
func (g *HITLGate) Await(ctx context.Context, threadID string, timeout time.Duration) (approved, auto bool) {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.waiters[threadID] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.waiters, threadID)
		g.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decision := <-ch:
		return decision, false
	case <-timer.C:
		return true, true
	case <-ctx.Done():
		return true, true
	}
}
