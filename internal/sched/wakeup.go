package sched

import (
	"github.com/haproxy-core/mincore/internal/tick"
)

// Wakeup implements spec.md §4.2's wakeup algorithm: OR the reason bits
// into state; if the task was neither RUNNING nor QUEUED, CAS it to
// QUEUED and insert it into a run queue. wc is the calling thread's
// context, used only to decide whether an affinity-single thread_mask
// names the caller (the common "I'm waking my own task" case).
func Wakeup(wc *WorkerContext, t *Task, reason State) {
	for {
		cur := t.state.load()
		if cur.Has(StateRunning) || cur.Has(StateQueued) {
			t.state.or(reason)
			return
		}
		if t.state.cas(cur, cur|reason|StateQueued) {
			break
		}
	}

	t.mu.Lock()
	mask := t.threadMask
	nice := t.nice
	t.mu.Unlock()

	key := wc.sched.nextRQKey() + int64(nice)*int64(wc.sched.RunqueueDepth)

	if tid, ok := mask.OnlyThread(); ok || wc.sched.nthreads == 1 {
		if !ok {
			tid = wc.TID
		}
		owner := wc.sched.threads[tid]
		owner.localRQ.insert(key, t)
		owner.rqueueSize++
		wc.sched.wakeEligible(mask)
		return
	}

	wc.sched.globalRQMu.Lock()
	wc.sched.globalRQ.insert(key, t)
	wc.sched.globalRQMu.Unlock()
	wc.sched.orGlobalTasksMask(mask)
	wc.sched.wakeEligible(mask)
}

// Queue inserts t into the wait queue that owns its thread affinity, at
// expire, honoring the minorant skip-if-already-sooner rule (spec.md
// §4.2). A task affine to a single thread uses that thread's local wait
// queue; otherwise it uses the global wait queue.
func Queue(wc *WorkerContext, t *Task, expire tick.Tick) {
	t.mu.Lock()
	mask := t.threadMask
	t.expire = tick.First(t.expire, expire)
	realExpire := t.expire
	t.mu.Unlock()

	if tid, ok := mask.OnlyThread(); ok {
		wc.sched.threads[tid].localWQ.Insert(t, realExpire)
		return
	}
	wc.sched.globalWQ.Insert(t, realExpire)
}

// Schedule ensures a wakeup no later than when, per spec.md §4.2 — it is
// Queue with "tighten, never loosen" semantics already built into the
// minorant rule, so the two share an implementation.
func Schedule(wc *WorkerContext, t *Task, when tick.Tick) {
	Queue(wc, t, when)
}

// Kill marks t KILLED (and QUEUED, even if it is currently RUNNING) and
// pushes it onto its owning thread's kill-fast-lane, guaranteeing
// detection before that thread's next scheduler pass — spec.md §4.2's
// kill semantics ("bypassing nice/priority"). The task's own Process
// function is responsible for observing StateKilled and freeing itself.
func Kill(wc *WorkerContext, t *Task) {
	for {
		cur := t.state.load()
		if t.state.cas(cur, cur|StateKilled|StateQueued) {
			break
		}
	}
	t.mu.Lock()
	mask := t.threadMask
	t.mu.Unlock()

	tid, ok := mask.OnlyThread()
	if !ok {
		tid = wc.TID
	}
	owner := wc.sched.threads[tid]
	owner.killedMu.Lock()
	owner.killed = append(owner.killed, t)
	owner.killedMu.Unlock()
	wc.sched.wakeThread(tid)
}
