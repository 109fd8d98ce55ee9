package watcher

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of filesystem events into a single trigger
// after a quiet window. A save in an editor can produce half a dozen
// events; one sync run covers them all. Triggers are serialized: a
// window that elapses while a previous trigger is still running queues
// at most one follow-up, so fire never runs concurrently with itself.
// Safe for concurrent use.
type Debouncer struct {
	window time.Duration
	fire   func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	fires chan struct{}
	done  chan struct{}
}

// NewDebouncer creates a Debouncer that waits for `window` of silence
// before firing.
func NewDebouncer(window time.Duration, fire func()) *Debouncer {
	d := &Debouncer{
		window: window,
		fire:   fire,
		fires:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// run invokes fire once per elapsed window, strictly one at a time.
func (d *Debouncer) run() {
	defer close(d.done)
	for range d.fires {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if stopped {
			continue
		}
		d.fire()
	}
}

// Touch registers activity. The pending trigger, if any, is pushed back
// by the full window.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Reset(d.window)
		return
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.timer = nil
		if d.stopped {
			return
		}
		// A fire already queued behind a running one covers this
		// window too.
		select {
		case d.fires <- struct{}{}:
		default:
		}
	})
}

// Stop cancels any pending trigger and waits for an in-flight one to
// finish. Subsequent Touch calls are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	close(d.fires)
	d.mu.Unlock()
	<-d.done
}
