package sched

import "github.com/google/btree"

// rqEntry is the run-queue's btree.Item: ordered by key, a monotonic
// insertion counter biased by the task's nice value (spec.md §4.2's
// wakeup algorithm: key = atomic_inc(rqueue_ticks) + nice*runqueue_depth).
type rqEntry struct {
	key  int64
	task *Task
}

func (e *rqEntry) Less(other btree.Item) bool {
	return e.key < other.(*rqEntry).key
}

// runQueue is an ordered tree of ready tasks, used once for each
// WorkerContext's local queue and once for the process-wide global
// queue (spec.md §3).
type runQueue struct {
	tree *btree.BTree
}

func newRunQueue() *runQueue {
	return &runQueue{tree: btree.New(32)}
}

func (q *runQueue) insert(key int64, t *Task) *rqEntry {
	e := &rqEntry{key: key, task: t}
	q.tree.ReplaceOrInsert(e)
	return e
}

func (q *runQueue) remove(e *rqEntry) {
	if e == nil {
		return
	}
	q.tree.Delete(e)
}

// min returns the entry with the smallest key, without removing it.
func (q *runQueue) min() *rqEntry {
	item := q.tree.Min()
	if item == nil {
		return nil
	}
	return item.(*rqEntry)
}

func (q *runQueue) popMin() *rqEntry {
	item := q.tree.DeleteMin()
	if item == nil {
		return nil
	}
	return item.(*rqEntry)
}

func (q *runQueue) len() int { return q.tree.Len() }
