package sched

import (
	"context"
	"time"

	"github.com/haproxy-core/mincore/internal/tick"
)

// RunLoop drives wc's Pass() forever, the outer loop spec.md §4.2
// describes around the run-loop policy: process a budget's worth of
// work, and when a Pass does nothing, park on the wake channel (or the
// nearest local wait-queue deadline, whichever comes first) rather than
// spinning. It returns when ctx is cancelled.
func (wc *WorkerContext) RunLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wc.Step(nowTick())

		if wc.localRQ.len() > 0 || wc.sched.globalRQ.len() > 0 || wc.hasReadyTasklets() {
			continue // more work is immediately available, keep spinning
		}

		wc.park(ctx)
	}
}

// Step runs one run-loop iteration without parking: advance Now, reap
// expired timers into their run queues, then run one Pass. RunLoop is
// this in a loop with a park between idle iterations; a caller driving
// the scheduler synchronously (tests, or a future embedder with its own
// event loop) can call Step directly instead.
func (wc *WorkerContext) Step(now tick.Tick) {
	wc.Now = now
	wc.reapExpiredTimers()
	wc.Pass()
}

// reapExpiredTimers wakes every task whose local or global wait-queue
// deadline has passed, with StateWokenTimer, before the pass that will
// actually run them (spec.md §4.2's timer-wait-queue → run-queue feed).
// Only thread 0 drains the global wait queue, since every thread would
// otherwise race to pop the same expired entries.
func (wc *WorkerContext) reapExpiredTimers() {
	for _, t := range wc.localWQ.Expired(wc.Now) {
		Wakeup(wc, t, StateWokenTimer)
	}
	if wc.TID == 0 {
		for _, t := range wc.sched.globalWQ.Expired(wc.Now) {
			Wakeup(wc, t, StateWokenTimer)
		}
	}
}

func (wc *WorkerContext) hasReadyTasklets() bool {
	return wc.urgent.len() > 0 || wc.normal.len() > 0 || wc.bulk.len() > 0 || wc.sharedInbox.len() > 0
}

// park blocks until woken, the next local timer expires, or ctx is
// cancelled, mirroring §4.5's sleeping_thread_mask bookkeeping.
func (wc *WorkerContext) park(ctx context.Context) {
	wc.sched.markSleeping(wc.TID)
	defer wc.sched.clearSleeping(wc.TID)

	timeout := wc.parkTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-wc.wakeCh:
	case <-timer.C:
	}
}

func (wc *WorkerContext) parkTimeout() time.Duration {
	deadline := wc.localWQ.Peek()
	if !tick.IsSet(deadline) {
		return 100 * time.Millisecond
	}
	if tick.IsBefore(deadline, wc.Now) {
		return time.Millisecond
	}
	return time.Duration(uint32(deadline)-uint32(wc.Now)) * time.Millisecond
}

// nowTick stands in for the platform monotonic-clock sample spec.md §4.1
// names as an external collaborator; here it is wall-clock milliseconds
// truncated to the Tick's 32-bit range.
func nowTick() tick.Tick {
	return tick.Tick(uint32(time.Now().UnixMilli()))
}
