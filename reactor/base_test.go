package reactor

import (
	"testing"
	"time"
)

func TestPriorityOrdering(t *testing.T) {
	base, err := NewWithConfig(WithPriorityCount(2))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	var order []int

	low := NewUser(base, func(ev *Event, _ Flag) { order = append(order, 1) }, nil)
	low.priority = 1
	high := NewUser(base, func(ev *Event, _ Flag) { order = append(order, 0) }, nil)
	high.priority = 0

	low.ActivateNow(0)
	high.ActivateNow(0)

	if err := base.Dispatch(Once); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Fatalf("expected priority-0 before priority-1, got %v", order)
	}
}

func TestAddDelNotPendingError(t *testing.T) {
	base, err := NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	ev := NewUser(base, func(*Event, Flag) {}, nil)
	if err := ev.Del(); err == nil {
		t.Fatalf("expected ErrEventNotPending deleting a never-added event")
	}
}

func TestLoopExitStopsDispatch(t *testing.T) {
	base, err := NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	done := make(chan error, 1)
	go func() {
		done <- base.Dispatch(0)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := base.LoopExit(0); err != nil {
		t.Fatalf("LoopExit: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Dispatch did not return after LoopExit")
	}
}

func TestReentrantDispatchRejected(t *testing.T) {
	base, err := NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	errCh := make(chan error, 1)
	ev := NewUser(base, func(*Event, Flag) {
		errCh <- base.Dispatch(Once)
		base.LoopExit(0)
	}, nil)
	ev.ActivateNow(0)

	if err := base.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	select {
	case err := <-errCh:
		if err != ErrReentrantRun {
			t.Fatalf("expected ErrReentrantRun, got %v", err)
		}
	default:
		t.Fatalf("expected nested Dispatch attempt to have run")
	}
}
