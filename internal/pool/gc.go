package pool

import (
	"golang.org/x/sync/semaphore"

	"github.com/haproxy-core/mincore/internal/rendez"
)

// gcSem bounds concurrent GC sweeps process-wide. Under a stampede —
// every thread's Alloc missing the free list around the same moment —
// many callers would otherwise all isolate and walk every pool's free
// list at once; only one sweep needs to actually run, since it accounts
// for whatever headroom the others were trying to reclaim too.
var gcSem = semaphore.NewWeighted(1)

// GC takes isolation via internal/rendez (unless the caller already
// holds it) and, for each of pools, pops and frees free-list entries
// back to the system while allocated-used exceeds MinAvail and the free
// list is non-empty, per spec.md §4.4. GC runs as an administrative
// caller outside the worker-thread set (ExternalIsolate), since it is
// triggered by alloc failure or an operator-invoked sweep rather than a
// worker's own run-loop pass.
func GC(r *rendez.Rendezvous, pools ...*Pool) {
	if !gcSem.TryAcquire(1) {
		return
	}
	defer gcSem.Release(1)

	alreadyIsolated := r != nil && r.IsIsolated()
	if r != nil && !alreadyIsolated {
		r.ExternalIsolate()
		defer r.ExternalRelease()
	}

	for _, p := range pools {
		p.gcOne()
	}
}

func (p *Pool) gcOne() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.allocated-p.used > p.MinAvail && len(p.free) > 0 {
		p.free = p.free[:len(p.free)-1]
		p.allocated--
	}
}
