package watcher

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	done := make(chan struct{}, 4)
	for i := 0; i < 5; i++ {
		d.Trigger("a.md", func() {
			calls.Add(1)
			done <- struct{}{}
		})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if got := d.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	fired := make(chan string, 2)
	d.Trigger("a", func() { fired <- "a" })
	d.Trigger("b", func() { fired <- "b" })
	if got := d.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case k := <-fired:
			seen[k] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only saw %v", seen)
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("seen = %v, want a and b", seen)
	}
}

func TestDebouncer_LastCallbackWins(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	got := make(chan int, 2)
	d.Trigger("k", func() { got <- 1 })
	d.Trigger("k", func() { got <- 2 })

	select {
	case v := <-got:
		if v != 2 {
			t.Errorf("callback = %d, want 2", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger("a", func() { calls.Add(1) })
	if !d.Cancel("a") {
		t.Error("Cancel should report a pending call")
	}
	if d.Cancel("a") {
		t.Error("second Cancel should report nothing pending")
	}

	d.Trigger("b", func() { calls.Add(1) })
	d.Stop()
	d.Trigger("c", func() { calls.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
	if got := d.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestNewDebouncer_DefaultDelay(t *testing.T) {
	if got := NewDebouncer(0).Delay(); got <= 0 {
		t.Errorf("Delay() = %v, want positive default", got)
	}
}
