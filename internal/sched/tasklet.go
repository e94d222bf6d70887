package sched

import (
	"sync"

	"github.com/haproxy-core/mincore/internal/ids"
)

// Class names one of the three tasklet priority lists of spec.md §3.
type Class int

const (
	Urgent Class = iota
	Normal
	Bulk
	numClasses
	noClass Class = -1
)

// classWeight implements spec.md §4.2 step 2: URGENT 64, NORMAL 48,
// BULK 16 — approximately 50/37/13%.
var classWeight = [numClasses]int{Urgent: 64, Normal: 48, Bulk: 16}

// TaskletFunc is a tasklet's unit of work. Unlike ProcessFunc, its
// return value is ignored by the run-loop; a tasklet that needs to run
// again re-wakes itself.
type TaskletFunc func(wc *WorkerContext, tl *Tasklet) *Tasklet

// Tasklet is the lightweight, timeout-less schedulable unit of spec.md
// §3. Unlike the source, which distinguishes a tasklet from a task by a
// sentinel nice value on a shared struct layout, this is a distinct
// type per spec.md §9's "explicit sum type" recommendation.
type Tasklet struct {
	ID      string
	Run     TaskletFunc
	Context any

	state State2
	tid   int // target thread; -1 means "current thread"

	next, prev *Tasklet
	list       *taskletList
}

// NewTasklet allocates a tasklet targeting tid (-1 for "current thread").
func NewTasklet(tid int) *Tasklet {
	id, err := ids.New()
	if err != nil {
		panic("sched: id generation failed: " + err.Error())
	}
	return &Tasklet{ID: id, tid: tid}
}

// SetThread re-homes tl onto a different target thread. Must not be
// called while tl is linked into any list — same restriction as
// SetAffinity on Task, and for the same reason: a list belongs to the
// thread it was linked under.
func (tl *Tasklet) SetThread(tid int) { tl.tid = tid }

// taskletList is an intrusive doubly-linked list. Unlike the source's
// raw pointer links into memory that may later be freed, Go's GC makes
// this safe without an index-into-arena indirection.
type taskletList struct {
	mu         sync.Mutex
	head, tail *Tasklet
	size       int
}

func (l *taskletList) pushBack(tl *Tasklet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushBackLocked(tl)
}

func (l *taskletList) pushBackLocked(tl *Tasklet) {
	if tl.list == l {
		return // already linked here
	}
	tl.prev, tl.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = tl
	} else {
		l.head = tl
	}
	l.tail = tl
	tl.list = l
	l.size++
}

func (l *taskletList) pushFront(tl *Tasklet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tl.list == l {
		return
	}
	tl.next, tl.prev = l.head, nil
	if l.head != nil {
		l.head.prev = tl
	} else {
		l.tail = tl
	}
	l.head = tl
	tl.list = l
	l.size++
}

func (l *taskletList) popFront() *Tasklet {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl := l.head
	if tl == nil {
		return nil
	}
	l.head = tl.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	tl.next, tl.prev, tl.list = nil, nil, nil
	l.size--
	return tl
}

func (l *taskletList) remove(tl *Tasklet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tl.list != l {
		return
	}
	if tl.prev != nil {
		tl.prev.next = tl.next
	} else {
		l.head = tl.next
	}
	if tl.next != nil {
		tl.next.prev = tl.prev
	} else {
		l.tail = tl.prev
	}
	tl.next, tl.prev, tl.list = nil, nil, nil
	l.size--
}

func (l *taskletList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// spliceFrom moves every node of other onto the back of l, atomically
// with respect to both lists' own locks. Used to drain the shared inbox
// onto the URGENT list each pass (spec.md §4.2 step 5).
func (l *taskletList) spliceFrom(other *taskletList) {
	other.mu.Lock()
	head, tail, n := other.head, other.tail, other.size
	other.head, other.tail, other.size = nil, nil, 0
	other.mu.Unlock()

	if head == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for node := head; node != nil; node = node.next {
		node.list = l
	}
	if l.tail != nil {
		l.tail.next = head
		head.prev = l.tail
	} else {
		l.head = head
	}
	l.tail = tail
	l.size += n
}

// placeTasklet implements the three-branch placement priority called out
// as an open question in spec.md §9, reproduced verbatim:
//
//  1. SELF_WAKING already set           -> BULK
//  2. woken from within its own Run     -> BULK, and mark SELF_WAKING
//  3. no class is currently running     -> URGENT
//  4. otherwise                         -> the class currently running
func placeTasklet(wc *WorkerContext, tl *Tasklet) Class {
	if tl.state.load().Has(StateSelfWaking) {
		return Bulk
	}
	if wc.currentTasklet == tl {
		tl.state.or(StateSelfWaking)
		return Bulk
	}
	if wc.currentClass == noClass {
		return Urgent
	}
	return wc.currentClass
}

func (wc *WorkerContext) listFor(c Class) *taskletList {
	switch c {
	case Urgent:
		return wc.urgent
	case Normal:
		return wc.normal
	case Bulk:
		return wc.bulk
	default:
		return wc.urgent
	}
}

// WakeTasklet sets the reason bits and, if not already linked, places
// tl onto the appropriate class list per placeTasklet. tid selects which
// WorkerContext to target: a non-negative tid != wc.TID routes through the
// shared inbox (the only cross-thread-safe path into another thread's
// lists); tid < 0 or tid == wc.TID targets wc directly.
func WakeTasklet(wc *WorkerContext, sched *Scheduler, tl *Tasklet, reason State) {
	prev := tl.state.or(reason | StateInList)
	if prev.Has(StateInList) {
		return
	}
	target := wc
	if tl.tid >= 0 && tl.tid != int(wc.TID) {
		target = sched.threads[tl.tid]
		target.sharedInbox.pushBack(tl)
		sched.wakeThread(uint(tl.tid))
		return
	}
	class := placeTasklet(target, tl)
	target.listFor(class).pushBack(tl)
}

// WakeTaskletExternal wakes tl from a goroutine that is not itself any
// WorkerContext's own run-loop — a transport readiness callback, for
// instance. WakeTasklet's same-thread branch reads wc.currentTasklet/
// currentClass, which only the owning thread's own Pass() may touch
// without synchronization; this always takes the shared-inbox branch
// instead, the one path into another thread's lists that is safe to
// call from anywhere.
func (s *Scheduler) WakeTaskletExternal(tl *Tasklet, reason State) {
	prev := tl.state.or(reason | StateInList)
	if prev.Has(StateInList) {
		return
	}
	tid := tl.tid
	if tid < 0 {
		tid = 0
	}
	target := s.threads[tid]
	target.sharedInbox.pushBack(tl)
	s.wakeThread(uint(tid))
}
