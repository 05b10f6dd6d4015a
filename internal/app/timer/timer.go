// Package timer provides cancellable scheduling primitives: a one-shot timer,
// a debouncer, a double-tap detector and a repeating ticker.
package timer

import (
	"context"
	"sync"
	"time"
)

// Timer runs at most one scheduled function at a time. Scheduling again
// replaces the pending invocation.
type Timer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen uint64
}

// Schedule arranges for fn to run after delay, cancelling any pending call.
func (t *Timer) Schedule(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	gen := t.gen
	t.t = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.t = nil
		t.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending invocation. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t == nil {
		return false
	}
	t.t.Stop()
	t.t = nil
	t.gen++
	return true
}

// Pending reports whether an invocation is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}

// Every calls fn every interval until the returned cancel function is called.
func Every(interval time.Duration, fn func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return cancel
}
