package ratelimit

import (
	"sync"
	"time"
)

// Debouncer runs its action once a call has not been followed by another for
// the configured delay. Only the argument of the last call in a quiet window is
// ever used.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	action  func(T)
	timer   *time.Timer
	gen     uint64
	pending T
	armed   bool
	stopped bool
}

// NewDebouncer creates a Debouncer. A delay <= 0 disables debouncing: every
// call runs the action synchronously.
func NewDebouncer[T any](delay time.Duration, action func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, action: action}
}

// Call schedules the action with arg, cancelling the pending invocation.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		d.action(arg)
		return
	}

	d.cancelLocked()
	d.gen++
	gen := d.gen
	d.pending = arg
	d.armed = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

// fire runs the action if no later Call or Cancel superseded generation gen.
// A timer whose Stop lost the race still reaches here and is discarded.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	arg := d.take()
	d.mu.Unlock()
	d.action(arg)
}

// Flush runs the pending invocation now, if there is one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.armed {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	arg := d.take()
	d.mu.Unlock()
	d.action(arg)
	return true
}

// Cancel drops the pending invocation.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop drops the pending invocation and ignores every later call.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// SetDelay changes the quiet period used by later calls.
func (d *Debouncer[T]) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

func (d *Debouncer[T]) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.armed {
		d.gen++
		d.armed = false
		var zero T
		d.pending = zero
	}
}

func (d *Debouncer[T]) take() T {
	arg := d.pending
	var zero T
	d.pending = zero
	d.armed = false
	d.timer = nil
	return arg
}
