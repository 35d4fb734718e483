package approval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolveWakesWaiter(t *testing.T) {
	t.Parallel()

	gate := NewGate()
	done := make(chan Decision, 1)

	go func() {
		d, err := gate.Ask(context.Background(), "Step 1: Flush DNS", "ipconfig /flushdns")
		if err != nil {
			t.Errorf("Ask returned error: %v", err)
		}
		done <- d
	}()

	// Wait for the request to become visible.
	deadline := time.Now().Add(2 * time.Second)
	for gate.Pending() == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for pending request")
		}
		time.Sleep(time.Millisecond)
	}

	req := gate.Pending()
	if req.Prompt != "Step 1: Flush DNS" || req.Command != "ipconfig /flushdns" {
		t.Errorf("unexpected pending request: %+v", req)
	}

	if !gate.Resolve(Approve) {
		t.Error("Resolve should report a released waiter")
	}

	select {
	case d := <-done:
		if d != Approve {
			t.Errorf("decision = %q, want approve", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}

	if gate.Pending() != nil {
		t.Error("gate should be idle after resolve")
	}
}

func TestResolveWithNoPendingIsNoop(t *testing.T) {
	t.Parallel()

	gate := NewGate()
	if gate.Resolve(Deny) {
		t.Error("Resolve with no pending request must be a no-op")
	}
	if gate.Pending() != nil {
		t.Error("no-op resolve must not create a pending request")
	}
}

func TestSecondConcurrentAskFails(t *testing.T) {
	t.Parallel()

	gate := NewGate()
	started := make(chan struct{})

	go func() {
		close(started)
		_, _ = gate.Ask(context.Background(), "first", "cmd-1")
	}()
	<-started

	deadline := time.Now().Add(2 * time.Second)
	for gate.Pending() == nil {
		if time.Now().After(deadline) {
			t.Fatal("first request never registered")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := gate.Ask(context.Background(), "second", "cmd-2")
	if !errors.Is(err, ErrPending) {
		t.Errorf("second Ask error = %v, want ErrPending", err)
	}

	gate.Resolve(Skip)
}

func TestAskHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	gate := NewGate()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.Ask(ctx, "step", "cmd")
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for gate.Pending() == nil {
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Ask error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ask did not return after cancellation")
	}

	if gate.Pending() != nil {
		t.Error("cancelled request must clear the slot")
	}
	// Slot is free again for the next run.
	if gate.Resolve(Approve) {
		t.Error("resolve after cancellation should find nothing pending")
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"approve", "deny", "skip"} {
		if _, err := ParseDecision(valid); err != nil {
			t.Errorf("ParseDecision(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseDecision("yes"); err == nil {
		t.Error("ParseDecision should reject unknown values")
	}
}
