package progress

import "sync"

// Callback receives the counters after every change.
type Callback func(completed, total int)

// Tracker counts completed units against a total that may grow while work
// is already running. It is safe for concurrent use. The callback runs
// outside the lock, so it may be slow or call back into the tracker, but
// concurrent updates may reach it out of order; wrap it with Ordered when
// that matters.
type Tracker struct {
	mu        sync.Mutex
	completed int
	total     int
	callback  Callback
}

// NewTracker creates a tracker; onProgress may be nil.
func NewTracker(onProgress Callback) *Tracker {
	return &Tracker{callback: onProgress}
}

// AddTotal grows the total by n.
func (t *Tracker) AddTotal(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.total += n
	completed, total := t.completed, t.total
	t.mu.Unlock()

	t.notify(completed, total)
}

// Advance marks n more units as completed.
func (t *Tracker) Advance(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.completed += n
	if t.completed > t.total {
		t.total = t.completed
	}
	completed, total := t.completed, t.total
	t.mu.Unlock()

	t.notify(completed, total)
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() (completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.total
}

// Reset zeroes both counters without notifying.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.completed, t.total = 0, 0
	t.mu.Unlock()
}

func (t *Tracker) notify(completed, total int) {
	if t.callback != nil {
		t.callback(completed, total)
	}
}

// Ordered wraps cb so calls are serialized and stale updates are dropped:
// completed never goes backwards, and for equal completed the total never
// shrinks. cb must not call back into the returned callback.
func Ordered(cb Callback) Callback {
	var mu sync.Mutex
	lastCompleted, lastTotal := -1, -1

	return func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		if completed < lastCompleted || (completed == lastCompleted && total <= lastTotal) {
			return
		}
		lastCompleted, lastTotal = completed, total
		cb(completed, total)
	}
}
