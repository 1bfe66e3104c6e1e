package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHITLDecisionDelivered(t *testing.T) {
	gate := NewHITLGate()

	go func() {
		for !gate.Decide("thread-1", false) {
			time.Sleep(time.Millisecond)
		}
	}()

	approved, auto := gate.Await(context.Background(), "thread-1", 5*time.Second)
	assert.False(t, approved)
	assert.False(t, auto)
	assert.Empty(t, gate.Pending())
}

func TestHITLTimeoutFailsOpen(t *testing.T) {
	gate := NewHITLGate()

	approved, auto := gate.Await(context.Background(), "thread-1", 10*time.Millisecond)
	assert.True(t, approved)
	assert.True(t, auto)
}

func TestHITLCancelFailsOpen(t *testing.T) {
	gate := NewHITLGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	approved, auto := gate.Await(ctx, "thread-1", time.Minute)
	assert.True(t, approved)
	assert.True(t, auto)
}

func TestHITLDecideWithoutWaiter(t *testing.T) {
	gate := NewHITLGate()
	assert.False(t, gate.Decide("nobody", true))
}

func TestHITLPendingListsWaiters(t *testing.T) {
	gate := NewHITLGate()
	done := make(chan struct{})

	go func() {
		defer close(done)
		gate.Await(context.Background(), "thread-1", time.Second)
	}()

	require.Eventually(t, func() bool {
		return len(gate.Pending()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"thread-1"}, gate.Pending())

	gate.Decide("thread-1", true)
	<-done
	assert.Empty(t, gate.Pending())
}
