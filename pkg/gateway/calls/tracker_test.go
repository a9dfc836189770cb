package calls

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("call_1", Handle{})
	u2 := tr.Register("call_2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_UnregisterIsIdempotent(t *testing.T) {
	tr := NewTracker()
	u := tr.Register("call_1", Handle{})
	u()
	u()
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
	if ok := tr.Wait(context.Background()); !ok {
		t.Fatal("expected Wait to return true")
	}
}

func TestTracker_ReRegisterReplacesOldHandle(t *testing.T) {
	tr := NewTracker()
	var old, fresh atomic.Int64
	tr.Register("call_1", Handle{Cancel: func() { old.Add(1) }})
	tr.Register("call_1", Handle{Cancel: func() { fresh.Add(1) }})

	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	tr.CancelAll()
	if old.Load() != 0 || fresh.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 0/1", old.Load(), fresh.Load())
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("call_1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("call_2", Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_WaitTimesOutWithActiveCalls(t *testing.T) {
	tr := NewTracker()
	defer tr.Register("call_1", Handle{})()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatal("expected Wait to time out while a call is active")
	}
}
