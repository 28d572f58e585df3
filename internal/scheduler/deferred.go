package scheduler

import (
	"context"
	"sync"
	"time"
)

type deferredState int

const (
	deferredWaiting deferredState = iota
	deferredStarted
	deferredCancelled
)

// Deferred is a one-shot task scheduled after a delay. It either runs once or
// is dropped; never both.
type Deferred struct {
	mu      sync.Mutex
	state   deferredState
	stop    chan struct{}
	dropped func()
}

// Defer runs task(ctx) after delay unless Cancel is called or parent is done
// first. dropped, if non-nil, is called exactly once when the task will never
// run. A zero or negative delay still runs task on its own goroutine.
func Defer(parent context.Context, delay time.Duration, task func(ctx context.Context), dropped func()) *Deferred {
	if parent == nil {
		parent = context.Background()
	}
	d := &Deferred{stop: make(chan struct{}), dropped: dropped}
	go d.wait(parent, delay, task)
	return d
}

func (d *Deferred) wait(ctx context.Context, delay time.Duration, task func(ctx context.Context)) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			d.drop()
			return
		case <-d.stop:
			timer.Stop()
			return
		}
	}
	d.mu.Lock()
	if d.state != deferredWaiting || ctx.Err() != nil {
		d.mu.Unlock()
		d.drop()
		return
	}
	d.state = deferredStarted
	d.mu.Unlock()
	if task != nil {
		task(ctx)
	}
}

// drop moves a waiting task to cancelled and fires the dropped callback.
func (d *Deferred) drop() {
	d.mu.Lock()
	if d.state != deferredWaiting {
		d.mu.Unlock()
		return
	}
	d.state = deferredCancelled
	d.mu.Unlock()
	if d.dropped != nil {
		d.dropped()
	}
}

// Cancel drops the task if it has not started. It reports whether this call
// prevented the run.
func (d *Deferred) Cancel() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	if d.state != deferredWaiting {
		d.mu.Unlock()
		return false
	}
	d.state = deferredCancelled
	close(d.stop)
	d.mu.Unlock()
	if d.dropped != nil {
		d.dropped()
	}
	return true
}
