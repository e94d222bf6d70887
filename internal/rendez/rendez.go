// Package rendez implements the thread rendezvous ("harmless period")
// mechanism of spec.md §4.3: a way for any worker thread to pause every
// other worker thread in a quiescent state, used to GC object pools
// (internal/pool) and to migrate connections between threads.
//
// The source implements this with three raw bitmasks updated by inline
// asm/atomic builtins and a busy spin in isolate(). The Go translation
// keeps the same three-bitmap shape and spin-wait loop (spec.md calls
// for synchronous, bounded-latency isolation, not a channel handshake)
// but backs each bitmap with internal/tmask, all three guarded by one
// sync.Mutex, which is how the teacher's scheduler already represents
// thread sets; go.uber.org/atomic holds only the isolated flag.
package rendez

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"

	"github.com/haproxy-core/mincore/internal/tmask"
)

// Rendezvous holds the three shared bitmaps of spec.md §4.3: WantRDV,
// Harmless, and Sync, plus the live thread-set they're measured against.
type Rendezvous struct {
	all tmask.Mask

	mu           sync.Mutex
	wantRDV      tmask.Mask
	harmless     tmask.Mask
	syncMask     tmask.Mask
	externalWant bool

	isolated atomic.Bool
}

// New returns a Rendezvous over nthreads live worker threads.
func New(nthreads uint) *Rendezvous {
	return &Rendezvous{all: tmask.All(nthreads)}
}

// SetHarmless marks tid as touching no shared mutable state — called
// before blocking in the poller or before a long syscall, per spec.md
// §4.3.
func (r *Rendezvous) SetHarmless(tid uint) {
	r.mu.Lock()
	r.harmless.Set(tid)
	r.mu.Unlock()
}

// ClearHarmless marks tid as active again.
func (r *Rendezvous) ClearHarmless(tid uint) {
	r.mu.Lock()
	r.harmless.Clear(tid)
	r.mu.Unlock()
}

// IsHarmless reports whether tid is currently marked harmless.
func (r *Rendezvous) IsHarmless(tid uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.harmless.Has(tid)
}

// Isolate sets the caller's bit in WantRDV and spins until Harmless
// covers every other live thread, per spec.md §4.3. It returns holding
// exclusive logical ownership of all shared state; the caller must call
// Release when done. Isolate does not mark the caller itself harmless —
// a thread isolating itself is, by definition, not quiescent.
func (r *Rendezvous) Isolate(tid uint) {
	r.mu.Lock()
	r.wantRDV.Set(tid)
	r.mu.Unlock()

	for {
		r.mu.Lock()
		others := r.all.Clone()
		others.Clear(tid)
		others.Each(func(t uint) {
			if r.harmless.Has(t) {
				others.Clear(t)
			}
		})
		done := others.IsEmpty()
		r.mu.Unlock()
		if done {
			break
		}
		runtime.Gosched()
	}
	r.isolated.Store(true)
}

// Release clears the caller's WantRDV bit, ending isolation.
func (r *Rendezvous) Release(tid uint) {
	r.mu.Lock()
	r.wantRDV.Clear(tid)
	allClear := r.wantRDV.IsEmpty()
	r.mu.Unlock()
	if allClear {
		r.isolated.Store(false)
	}
}

// SyncRelease is the variant of spec.md §4.3 used when the isolated
// section set up state every other thread must observe coherently
// before any of them proceeds: every releasing thread first clears its
// own Harmless bit, and Release does not return to any caller until all
// of them have done so.
func (r *Rendezvous) SyncRelease(tid uint, wg *sync.WaitGroup) {
	r.mu.Lock()
	r.syncMask.Set(tid)
	r.harmless.Clear(tid)
	r.mu.Unlock()

	wg.Done()
	wg.Wait()
	r.Release(tid)

	r.mu.Lock()
	r.syncMask.Clear(tid)
	r.mu.Unlock()
}

// IsIsolated reports whether some thread currently holds isolation.
func (r *Rendezvous) IsIsolated() bool {
	return r.isolated.Load()
}

// ExternalIsolate is Isolate for a caller that is not itself one of the
// live worker threads (spec.md §4.4's GC sweep, typically run from an
// administrative goroutine rather than a worker's own run-loop). It
// spins until Harmless covers every live worker thread, with none
// excluded.
func (r *Rendezvous) ExternalIsolate() {
	r.mu.Lock()
	r.externalWant = true
	r.mu.Unlock()

	for {
		r.mu.Lock()
		others := r.all.Clone()
		others.Each(func(t uint) {
			if r.harmless.Has(t) {
				others.Clear(t)
			}
		})
		done := others.IsEmpty()
		r.mu.Unlock()
		if done {
			break
		}
		runtime.Gosched()
	}
	r.isolated.Store(true)
}

// ExternalRelease ends an ExternalIsolate.
func (r *Rendezvous) ExternalRelease() {
	r.mu.Lock()
	r.externalWant = false
	r.mu.Unlock()
	r.isolated.Store(false)
}

// WantRDV reports whether any thread, or an external caller, currently
// wants isolation. internal/sched's run-loop neither polls it nor calls
// SetHarmless before parking; only callers that invoke SetHarmless
// themselves count as harmless.
func (r *Rendezvous) WantRDV() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.wantRDV.IsEmpty() || r.externalWant
}
