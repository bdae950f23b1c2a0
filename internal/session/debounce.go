package session

import (
	"sync"
	"time"
)

// debouncer runs fn once after delay has passed without another Schedule.
// Only the latest schedule survives; earlier ones are cancelled.
type debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func() error
	timer *time.Timer
	gen   uint64
}

func newDebouncer(delay time.Duration, fn func() error) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	_ = d.fn()
}

// Flush runs a pending call immediately. It reports whether one was pending.
func (d *debouncer) Flush() (bool, error) {
	if !d.cancel() {
		return false, nil
	}
	return true, d.fn()
}

func (d *debouncer) cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}
