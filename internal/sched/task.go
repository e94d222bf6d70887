package sched

import (
	"sync"

	uatomic "go.uber.org/atomic"

	"github.com/haproxy-core/mincore/internal/ids"
	"github.com/haproxy-core/mincore/internal/tick"
	"github.com/haproxy-core/mincore/internal/tmask"
)

// ProcessFunc is a Task's unit of work. It returns the task to re-queue
// it (normally the same pointer it was given), or nil to signal that the
// task freed itself and the scheduler must not touch it again — mirrors
// spec.md §4.2 step 6's "re-queue based on return value".
type ProcessFunc func(wc *WorkerContext, t *Task, observed State) *Task

// Task is a schedulable unit with a timeout, per spec.md §3.
type Task struct {
	ID      string
	Process ProcessFunc
	Context any

	state State2 // atomic flag word

	mu         sync.Mutex // guards the fields below; held briefly, never across Process
	threadMask tmask.Mask
	expire     tick.Tick
	nice       int

	calls   uint64
	cpuTime int64 // nanoseconds
	latTime int64 // nanoseconds
}

// State2 wraps an atomic uint32 as the public State bit type, so call
// sites never import go.uber.org/atomic directly.
type State2 struct{ v uatomic.Uint32 }

func (s *State2) load() State          { return State(s.v.Load()) }
func (s *State2) or(bits State) State  { return State(s.v.Or(uint32(bits))) }
func (s *State2) and(bits State) State { return State(s.v.And(uint32(bits))) }
func (s *State2) cas(old, new_ State) bool {
	return s.v.CompareAndSwap(uint32(old), uint32(new_))
}
func (s *State2) clear(bits State) State { return State(s.v.And(uint32(^bits))) }

// NewTask allocates a task affine to the threads named by mask. A task
// whose mask names no live thread is a fatal misconfiguration (spec.md
// §4.2 Failure modes); callers are expected to have validated mask
// against the live thread count before calling NewTask.
func NewTask(mask tmask.Mask) *Task {
	if mask.IsEmpty() {
		panic("sched: NewTask called with an empty thread_mask — task would be orphaned")
	}
	t := &Task{
		ID:         mustID(),
		threadMask: mask,
		expire:     tick.Eternity,
	}
	return t
}

// Free releases a task unconditionally. Callers must ensure the task is
// not RUNNING and not linked in any queue.
func Free(t *Task) {
	_ = t // nothing to release beyond what the GC already reclaims
}

// Destroy is safe against self-destroy: if t is the task currently
// executing on the calling thread, it clears Process and defers the
// actual free to the scheduler (which frees it once Process returns
// nil), per spec.md §4.2.
func Destroy(wc *WorkerContext, t *Task) {
	if wc != nil && wc.current == t {
		t.mu.Lock()
		t.Process = nil
		t.mu.Unlock()
		return
	}
	Free(t)
}

// Nice returns the task's priority bias in [-1024, 1024].
func (t *Task) Nice() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nice
}

// SetAffinity changes which threads may execute t. Must not be called
// while t is queued; callers re-queue after changing affinity.
func SetAffinity(t *Task, mask tmask.Mask) {
	t.mu.Lock()
	t.threadMask = mask
	t.mu.Unlock()
}

// Expire returns the task's current wake-up deadline.
func (t *Task) Expire() tick.Tick {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expire
}

func mustID() string {
	id, err := ids.New()
	if err != nil {
		// go-uuid only fails reading crypto/rand; treat as fatal per
		// spec.md §7's "invariant violation" class.
		panic("sched: id generation failed: " + err.Error())
	}
	return id
}
