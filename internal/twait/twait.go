// Package twait implements the timer wait-queue of spec.md §3/§4.2: an
// ordered tree keyed by expiration tick, supporting the "stored key is a
// minorant of the real expire" insertion rule and a wrap-aware expiry
// scan. One Queue instance backs each per-thread wait queue and one more
// backs the process-wide global wait queue (spec.md §3).
//
// The tree ordering relies on every live key being mutually comparable
// under tick.IsBefore, which holds as long as no two outstanding
// deadlines are more than 2^31 ticks apart — the same assumption
// spec.md §4.1's ±2^31 window already requires of all timer keys.
package twait

import (
	"sync"

	"github.com/google/btree"

	"github.com/haproxy-core/mincore/internal/tick"
)

// Queue is a tick-ordered wait queue over caller-chosen identities K.
// K is typically a pointer to the waiting task, used as a stable handle
// for Update/Remove.
type Queue[K comparable] struct {
	mu   sync.RWMutex
	tree *btree.BTree
	byID map[K]*entry[K]
	seq  uint64
}

type entry[K comparable] struct {
	id  K
	key tick.Tick
	seq uint64
}

func (e *entry[K]) Less(other btree.Item) bool {
	o := other.(*entry[K])
	if e.key != o.key {
		return tick.IsBefore(e.key, o.key)
	}
	return e.seq < o.seq
}

// New returns an empty queue. degree controls the underlying B-tree's
// branching factor; 32 is a reasonable default for a few thousand
// outstanding timers.
func New[K comparable](degree int) *Queue[K] {
	if degree < 2 {
		degree = 2
	}
	return &Queue[K]{
		tree: btree.New(degree),
		byID: make(map[K]*entry[K]),
	}
}

// Insert places id at expire, unless id is already queued at a key no
// later than expire (the minorant rule of spec.md §4.2) in which case
// the call is a no-op. Returns true if the tree was modified.
func (q *Queue[K]) Insert(id K, expire tick.Tick) bool {
	if !tick.IsSet(expire) {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byID[id]; ok {
		if existing.key == expire || tick.IsBefore(existing.key, expire) {
			// Already queued at a key no later than expire: the stored
			// minorant still holds, nothing to do.
			return false
		}
		q.tree.Delete(existing)
		delete(q.byID, id)
	}

	q.seq++
	e := &entry[K]{id: id, key: expire, seq: q.seq}
	q.tree.ReplaceOrInsert(e)
	q.byID[id] = e
	return true
}

// Remove unlinks id, if present.
func (q *Queue[K]) Remove(id K) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[id]
	if !ok {
		return
	}
	q.tree.Delete(e)
	delete(q.byID, id)
}

// Contains reports whether id is currently linked.
func (q *Queue[K]) Contains(id K) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.byID[id]
	return ok
}

// Len returns the number of linked entries.
func (q *Queue[K]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.tree.Len()
}

// Expired removes and returns every id whose stored key has expired as
// of now, walking the tree in ascending (earliest-first) order and
// stopping at the first non-expired entry — per spec.md §4.2's "stop at
// the first non-expired correctly-placed node".
func (q *Queue[K]) Expired(now tick.Tick) []K {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []K
	var toDelete []*entry[K]
	q.tree.Ascend(func(item btree.Item) bool {
		e := item.(*entry[K])
		if !tick.IsExpired(e.key, now) {
			return false
		}
		out = append(out, e.id)
		toDelete = append(toDelete, e)
		return true
	})
	for _, e := range toDelete {
		q.tree.Delete(e)
		delete(q.byID, e.id)
	}
	return out
}

// Peek returns the earliest key in the queue, or tick.Eternity if empty
// — used by the run-loop to compute "sleep until next timer".
func (q *Queue[K]) Peek() tick.Tick {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item := q.tree.Min()
	if item == nil {
		return tick.Eternity
	}
	return item.(*entry[K]).key
}
