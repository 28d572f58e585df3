package analysis

import (
	"sync"
	"time"

	"autodecide/internal/logger"
)

// Listener receives every published snapshot. Listeners run synchronously on
// the publisher's goroutine and must not block.
type Listener func(Snapshot)

// Feed is the explicit "upstream updated" event: publishers push snapshots,
// subscribers (the orchestrator) react to them.
type Feed struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	last      *Snapshot
	nowFn     func() time.Time
}

func NewFeed() *Feed {
	return &Feed{listeners: make(map[int]Listener), nowFn: time.Now}
}

// Subscribe registers fn and returns a function that removes it.
func (f *Feed) Subscribe(fn Listener) (unsubscribe func()) {
	if f == nil || fn == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// Publish stamps the snapshot and hands each listener its own copy.
func (f *Feed) Publish(s Snapshot) {
	if f == nil {
		return
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = f.nowFn()
	}
	f.mu.Lock()
	kept := s.Clone()
	f.last = &kept
	listeners := make([]Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		func(cb Listener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Feed: listener panic: %v", r)
				}
			}()
			cb(s.Clone())
		}(fn)
	}
}

// Last returns a copy of the most recently published snapshot.
func (f *Feed) Last() (Snapshot, bool) {
	if f == nil {
		return Snapshot{}, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return Snapshot{}, false
	}
	return f.last.Clone(), true
}
