package ratelimit

import (
	"sync"
	"time"
)

// Throttler runs its action at most once per interval. The first call of a
// window runs immediately; calls inside the window are coalesced into one
// trailing run carrying the latest argument.
type Throttler[T any] struct {
	mu         sync.Mutex
	interval   time.Duration
	action     func(T)
	now        func() time.Time
	last       time.Time
	timer      *time.Timer
	gen        uint64
	pending    T
	hasPending bool
	stopped    bool
}

// NewThrottler creates a Throttler. An interval <= 0 disables throttling.
func NewThrottler[T any](interval time.Duration, action func(T)) *Throttler[T] {
	return &Throttler[T]{interval: interval, action: action, now: time.Now}
}

// Call runs the action now if the window is open, otherwise schedules the
// trailing run.
func (t *Throttler[T]) Call(arg T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.interval <= 0 {
		t.mu.Unlock()
		t.action(arg)
		return
	}

	now := t.now()
	elapsed := now.Sub(t.last)
	if t.timer == nil && (t.last.IsZero() || elapsed >= t.interval) {
		t.last = now
		t.mu.Unlock()
		t.action(arg)
		return
	}

	t.pending = arg
	t.hasPending = true
	if t.timer == nil {
		t.gen++
		gen := t.gen
		t.timer = time.AfterFunc(t.interval-elapsed, func() { t.fire(gen) })
	}
	t.mu.Unlock()
}

func (t *Throttler[T]) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	if t.stopped || !t.hasPending {
		t.mu.Unlock()
		return
	}
	arg := t.pending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.last = t.now()
	t.mu.Unlock()
	t.action(arg)
}

// Force runs the action immediately with arg, replacing any trailing run.
// The window restarts from now.
func (t *Throttler[T]) Force(arg T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	var zero T
	t.pending = zero
	t.hasPending = false
	t.last = t.now()
	t.mu.Unlock()
	t.action(arg)
}

// Stop cancels the trailing run and ignores every later call.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.hasPending = false
	t.stopped = true
}

// SetInterval changes the window used by later calls.
func (t *Throttler[T]) SetInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
}
