package observation

import (
	"sync"
	"time"
)

// Debouncer runs a function once the calls to [Debouncer.Trigger] have been
// quiet for the configured interval. Every Trigger restarts the wait.
type Debouncer struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer that calls fn after interval of quiet.
func NewDebouncer(interval time.Duration, fn func()) *Debouncer {
	return &Debouncer{interval: interval, fn: fn}
}

// Trigger schedules fn, cancelling any pending run. It is a no-op after
// [Debouncer.Stop].
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fn)
}

// Stop cancels a pending run and disables further triggers. It reports
// whether a run was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer == nil {
		return false
	}
	return d.timer.Stop()
}
