package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of filesystem events into one callback.
// A save typically fires several writes in quick succession; the callback
// runs once, after the burst goes quiet for the configured delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	paths map[string]struct{}
	fn    func(paths []string)
}

// NewDebouncer creates a debouncer that invokes fn with the accumulated
// set of changed paths.
func NewDebouncer(delay time.Duration, fn func(paths []string)) *Debouncer {
	return &Debouncer{
		delay: delay,
		paths: make(map[string]struct{}),
		fn:    fn,
	}
}

// Trigger records a changed path and (re)arms the timer.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paths[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	d.paths = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	if len(paths) > 0 {
		d.fn(paths)
	}
}

// Stop cancels any pending callback and drops accumulated paths.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.paths = make(map[string]struct{})
}
