package timer

import (
	"sync"
	"time"
)

// Debouncer delays a call until no new call has arrived for the quiet period.
// Only the most recent function runs.
type Debouncer struct {
	delay time.Duration
	timer Timer

	mu      sync.Mutex
	pending func()
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call replaces the pending function with fn and restarts the quiet period.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	d.pending = fn
	d.mu.Unlock()

	d.timer.Schedule(d.delay, d.fire)
}

// Flush runs the pending function immediately, if any.
func (d *Debouncer) Flush() {
	d.timer.Cancel()
	d.fire()
}

// Stop drops the pending function without running it.
func (d *Debouncer) Stop() {
	d.timer.Cancel()
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// DefaultTapWindow is the interval within which a second tap counts as a
// double tap.
const DefaultTapWindow = 300 * time.Millisecond

// TapDetector distinguishes single from double taps.
type TapDetector struct {
	window time.Duration
	timer  Timer
}

// NewTapDetector creates a detector. A non-positive window uses
// DefaultTapWindow.
func NewTapDetector(window time.Duration) *TapDetector {
	if window <= 0 {
		window = DefaultTapWindow
	}
	return &TapDetector{window: window}
}

// Tap registers a tap. If a first tap is still waiting, its single action is
// cancelled and double runs now. Otherwise single is scheduled to run when the
// window closes.
func (d *TapDetector) Tap(single, double func()) {
	if d.timer.Cancel() {
		double()
		return
	}
	d.timer.Schedule(d.window, single)
}

// Reset cancels a waiting single tap.
func (d *TapDetector) Reset() {
	d.timer.Cancel()
}
