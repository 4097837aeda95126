package service

import (
	"sync"
	"time"
)

// DefaultDebounce is the idle time before a pending upload is sent
const DefaultDebounce = 3 * time.Second

// Debouncer is a single-slot cancellable timer. Each Trigger replaces the
// pending call and restarts the delay, so a burst runs fn once.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
}

// NewDebouncer creates a Debouncer; a non-positive delay uses DefaultDebounce
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the delay, cancelling any pending call
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.delay, func() {
		if run := d.take(gen); run != nil {
			run()
		}
	})
}

// take claims the pending call if it still belongs to generation gen
func (d *Debouncer) take(gen uint64) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gen != gen || d.pending == nil {
		return nil
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	return fn
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.timer.Stop()
	d.gen++
	d.pending = nil
	d.timer = nil
	return true
}

// Pending reports whether a call is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
