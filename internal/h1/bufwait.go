package h1

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// BufAvailable is invoked for a waiter once a buffer becomes available.
// Returning true means the waiter took the buffer and should be
// removed from the list; false re-queues it for the next release.
type BufAvailable func() (claimed bool)

// BufWaitList is the process-wide, multi-producer buffer-wait list of
// spec.md §4.6.6: when get_buf fails, the H1 connection registers here;
// any buffer release anywhere drains the list and invokes each
// callback. golang.org/x/sync/semaphore caps how many waiter callbacks
// run at the same time across concurrent Drain calls; a waiter that
// finds the cap reached stays queued for a later Drain.
type BufWaitList struct {
	mu       sync.Mutex
	waiters  []BufAvailable
	throttle *semaphore.Weighted
}

// NewBufWaitList returns an empty list that lets at most maxConcurrent
// waiter callbacks run at once. A single Drain runs its callbacks one
// after another, so it replays every pending waiter.
func NewBufWaitList(maxConcurrent int64) *BufWaitList {
	return &BufWaitList{throttle: semaphore.NewWeighted(maxConcurrent)}
}

// Register adds a waiter, invoked on a future Drain.
func (l *BufWaitList) Register(cb BufAvailable) {
	l.mu.Lock()
	l.waiters = append(l.waiters, cb)
	l.mu.Unlock()
}

// Drain is called whenever any buffer is released anywhere; it invokes
// each pending waiter and keeps any that declined the buffer.
func (l *BufWaitList) Drain() {
	l.mu.Lock()
	pending := l.waiters
	l.waiters = nil
	l.mu.Unlock()

	var remaining []BufAvailable
	for _, cb := range pending {
		if !l.throttle.TryAcquire(1) {
			remaining = append(remaining, cb)
			continue
		}
		claimed := cb()
		l.throttle.Release(1)
		if !claimed {
			remaining = append(remaining, cb)
		}
	}

	if len(remaining) > 0 {
		l.mu.Lock()
		l.waiters = append(remaining, l.waiters...)
		l.mu.Unlock()
	}
}

// Len reports the number of currently pending waiters.
func (l *BufWaitList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
