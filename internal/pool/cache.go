package pool

import (
	"github.com/hashicorp/golang-lru/simplelru"
)

// threadCache is the per-thread LRU of freed objects described in
// spec.md §4.4: freeing prepends to both the per-pool free list and the
// calling thread's LRU list; allocation pops from here first. When the
// thread's total cached bytes exceed its budget, the LRU tail is evicted
// back into the pool's shared free list until under 7/8 of the cap.
//
// The source threads this through a fixed per-thread array of per-pool
// list heads. hashicorp/golang-lru's simplelru.LRU already implements
// exactly the "ordered list + O(1) eviction of the tail" shape that
// needs, keyed here by a monotonic per-insertion sequence number since
// the cached values themselves (arbitrary pooled objects) aren't
// comparable map keys in general.
type threadCache struct {
	lru      *simplelru.LRU
	seq      uint64
	bytes    int
	capBytes int
	elemSize int
}

func newThreadCache(capBytes, elemSize int, onEvict func(v any)) *threadCache {
	tc := &threadCache{capBytes: capBytes, elemSize: elemSize}
	lru, err := simplelru.NewLRU(1<<20, func(_ interface{}, value interface{}) {
		tc.bytes -= tc.elemSize
		onEvict(value)
	})
	if err != nil {
		// NewLRU only fails for size<=0, which 1<<20 never is.
		panic("pool: simplelru.NewLRU: " + err.Error())
	}
	tc.lru = lru
	return tc
}

// push adds a freed value to the cache, evicting from the tail until
// back under 7/8 of the byte budget.
func (tc *threadCache) push(v any) {
	tc.seq++
	tc.lru.Add(tc.seq, v)
	tc.bytes += tc.elemSize
	threshold := tc.capBytes * 7 / 8
	for tc.bytes > threshold {
		if _, _, ok := tc.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// pop removes and returns the most recently freed value, if any.
func (tc *threadCache) pop() (any, bool) {
	// simplelru has no "most recent" accessor distinct from Get, so the
	// cache's own insertion order is used via GetOldest's counterpart:
	// walk Keys() from the tail (most recently added = highest seq).
	keys := tc.lru.Keys()
	if len(keys) == 0 {
		return nil, false
	}
	k := keys[len(keys)-1]
	v, ok := tc.lru.Peek(k)
	if !ok {
		return nil, false
	}
	tc.lru.Remove(k)
	tc.bytes -= tc.elemSize
	return v, true
}

func (tc *threadCache) len() int { return tc.lru.Len() }
