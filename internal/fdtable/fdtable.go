// Package fdtable implements the dense per-fd state table of spec.md
// §3/§4.5: the core-side half of the pluggable poller contract. The
// poller itself (init/term/test/fork/poll/clo/flags) is not modelled in
// this module; this package owns only the per-fd bookkeeping a poller
// reads and writes.
//
// The source packs running_mask and thread_mask into adjacent machine
// words so a single double-word CAS can move an fd between threads
// atomically. Go has no portable double-word CAS, so Entry instead
// guards both masks with one mutex — the same serialization the source
// achieves lock-free, expressed with the primitive Go actually gives
// you for multi-field atomicity.
package fdtable

import (
	"sync"

	"github.com/haproxy-core/mincore/internal/tmask"
)

// State is the compact per-direction ACTIVE/READY/SHUT/ERR byte of
// spec.md §3.
type State uint8

const (
	StateRecvActive State = 1 << iota
	StateRecvReady
	StateRecvShut
	StateSendActive
	StateSendReady
	StateSendShut
	StateErr
)

// PollEvent is the poll_ev byte (IN/OUT/PRI/ERR/HUP).
type PollEvent uint8

const (
	EventIn PollEvent = 1 << iota
	EventOut
	EventPri
	EventErr
	EventHup
)

// Flags are the boolean per-fd flags of spec.md §3.
type Flags uint8

const (
	FlagLingerRisk Flags = 1 << iota
	FlagCloned
	FlagInitialized
	FlagEdgeTriggerPossible
)

// IOCallback is the iocb invoked on the fd's primary thread when the
// poller reports events.
type IOCallback func(tid uint, fd int, ev PollEvent)

// deadSentinel marks a released slot: spec.md §3's "dereferencing a
// released fd reliably crashes" translated to Go: Owner compares the
// owner against this sentinel and panics explicitly instead of reading
// garbage — same fail-fast property, achieved without an unsafe
// raw-pointer sentinel.
var deadSentinel = &struct{}{}

// Entry is one fd's table row.
type Entry struct {
	mu sync.Mutex

	runningMask tmask.Mask
	threadMask  tmask.Mask
	updateMask  tmask.Mask

	state   State
	pollEv  PollEvent
	flags   Flags
	owner   any
	iocb    IOCallback
	inList  bool
}

// Table is the dense fd array of spec.md §4.5.
type Table struct {
	mu      sync.RWMutex
	entries []*Entry
}

// New returns an empty table sized for an expected fd count (a hint;
// the table grows as needed).
func New(hint int) *Table {
	return &Table{entries: make([]*Entry, 0, hint)}
}

// Insert installs a fresh, initialized entry at fd, growing the table
// if needed, and returns it.
func (t *Table) Insert(fd int, owner any, primary uint) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.entries) <= fd {
		t.entries = append(t.entries, nil)
	}
	e := &Entry{owner: owner, flags: FlagInitialized}
	e.threadMask.Set(primary)
	e.runningMask.Set(primary)
	t.entries[fd] = e
	return e
}

// Lookup returns fd's entry, or nil if it has never been inserted or
// has been released.
func (t *Table) Lookup(fd int) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.entries) {
		return nil
	}
	return t.entries[fd]
}

// Release marks fd's slot dead: its owner is replaced with the dead
// sentinel so any stray access after release panics instead of
// silently reading a reused entry, and the slot is cleared so a later
// Insert at the same fd starts fresh.
func (t *Table) Release(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return
	}
	e := t.entries[fd]
	e.mu.Lock()
	e.owner = deadSentinel
	e.mu.Unlock()
	t.entries[fd] = nil
}

// Owner returns the live owner of e, panicking if e has been released
// (spec.md §3's dead-slot sentinel).
func (e *Entry) Owner() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == deadSentinel {
		panic("fdtable: access to a released fd entry")
	}
	return e.owner
}

// SetIOCallback installs the callback the poller invokes on events.
func (e *Entry) SetIOCallback(cb IOCallback) {
	e.mu.Lock()
	e.iocb = cb
	e.mu.Unlock()
}

// RequestUpdate toggles interest bits into state and ORs tid into
// update_mask, per spec.md §4.5 — the poller's poll() later dequeues
// this and clears both.
func (e *Entry) RequestUpdate(tid uint, bits State, set bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set {
		e.state |= bits
	} else {
		e.state &^= bits
	}
	e.updateMask.Set(tid)
}

// DrainUpdates returns the set of threads that requested an interest
// change and clears update_mask — called by the poller's poll().
func (e *Entry) DrainUpdates() tmask.Mask {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.updateMask
	e.updateMask = tmask.Mask{}
	return m
}

// SetPollEvents records poll_ev and invokes iocb inline on the calling
// goroutine, passing the fd's primary thread (the lowest thread in
// thread_mask) as tid — spec.md §4.5. An Entry does not record its own
// fd number, so the fd argument passed to iocb is always 0.
func (e *Entry) SetPollEvents(ev PollEvent) {
	e.mu.Lock()
	e.pollEv = ev
	mask := e.threadMask
	cb := e.iocb
	e.mu.Unlock()

	if cb == nil {
		return
	}
	tid, ok := mask.LowestSet()
	if !ok {
		tid = 0
	}
	cb(tid, 0, ev)
}

// State returns the current per-direction state byte.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Takeover atomically moves e from its current thread(s) to newOwner,
// per spec.md §4.5: running_mask and thread_mask are both set to
// {newOwner} under e's single mutex (the stand-in for the source's
// double-word CAS — see the package doc), then onTakeover is invoked
// (expected to call the transport's takeover and re-arm interest from
// newOwner) while still holding exclusivity over the mask transition.
func (e *Entry) Takeover(newOwner uint, onTakeover func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.runningMask = tmask.Single(newOwner)
	e.threadMask = tmask.Single(newOwner)

	if onTakeover != nil {
		return onTakeover()
	}
	return nil
}

// ThreadMask returns the set of threads currently allowed to run e.
func (e *Entry) ThreadMask() tmask.Mask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threadMask
}

// sleeping_thread_mask (spec.md §4.5) is process-wide, not per-fd; it
// lives on the scheduler's wakeup path — see sched.Scheduler.markSleeping
// and wakeThread — not in this table.
