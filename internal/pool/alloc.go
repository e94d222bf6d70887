package pool

import "github.com/haproxy-core/mincore/internal/rendez"

// Alloc satisfies an allocation from, in order: the calling thread's
// LRU cache, the pool's shared free list, or the system allocator (p.New).
// A failed system allocation triggers one GC attempt via r before a
// second, final failure increments Failed — spec.md §4.4's refill order.
func (p *Pool) Alloc(tid uint, r *rendez.Rendezvous) any {
	if tc := p.threadCacheFor(tid); tc != nil {
		if v, ok := tc.pop(); ok {
			p.mu.Lock()
			p.used++
			p.mu.Unlock()
			return v
		}
	}

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		tv := p.free[n-1]
		p.free = p.free[:n-1]
		p.used++
		p.needed.sample(p.allocated)
		p.mu.Unlock()
		return tv.value
	}
	p.mu.Unlock()

	v := p.systemAlloc()
	if v != nil {
		return v
	}

	if r != nil {
		GC(r, p)
	}
	v = p.systemAlloc()
	if v == nil {
		p.mu.Lock()
		p.failed++
		p.mu.Unlock()
		p.logEntry().Warn("pool exhausted after gc retry")
		return nil
	}
	return v
}

func (p *Pool) systemAlloc() any {
	if p.New == nil {
		return nil
	}
	v := p.New()
	if v == nil {
		return nil
	}
	p.mu.Lock()
	p.allocated++
	p.used++
	p.needed.sample(p.allocated)
	p.mu.Unlock()
	return v
}

// Free returns v to p via the calling thread's LRU cache, which is
// created on first use; values the cache evicts to stay within its byte
// budget move on to the shared free list.
func (p *Pool) Free(tid uint, v any) {
	p.mu.Lock()
	if p.used > 0 {
		p.used--
	}
	p.mu.Unlock()

	if tc := p.threadCacheFor(tid); tc != nil {
		tc.push(v)
		return
	}
	p.mu.Lock()
	p.free = append(p.free, taggedValue{owner: p, value: v})
	p.mu.Unlock()
}

// Flush releases every cached and free-listed object in p back to the
// system, without regard to MinAvail.
func (p *Pool) Flush() {
	p.mu.Lock()
	p.free = nil
	p.caches = make(map[uint]*threadCache)
	p.allocated = p.used
	p.mu.Unlock()
}

func (p *Pool) threadCacheFor(tid uint) *threadCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	tc, ok := p.caches[tid]
	if !ok {
		tc = newThreadCache(p.capBytes, p.ElemSize, func(v any) {
			p.mu.Lock()
			p.free = append(p.free, taggedValue{owner: p, value: v})
			p.mu.Unlock()
		})
		p.caches[tid] = tc
	}
	return tc
}
