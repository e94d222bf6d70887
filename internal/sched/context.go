package sched

import (
	"sync"
	"sync/atomic"

	"github.com/haproxy-core/mincore/internal/tick"
	"github.com/haproxy-core/mincore/internal/tmask"
	"github.com/haproxy-core/mincore/internal/twait"
)

// WorkerContext is the explicit, passed-around replacement for the
// source's thread-local sched/now/ti globals (spec.md §9's "Global
// mutable state → context passing"). One exists per worker thread.
type WorkerContext struct {
	TID uint
	Now tick.Tick

	sched *Scheduler

	localRQ *runQueue
	localWQ *twait.Queue[*Task]

	urgent, normal, bulk *taskletList
	sharedInbox          *taskletList

	taskListSize int
	rqueueSize   int

	current         *Task
	currentTasklet  *Tasklet
	currentClass    Class

	killed   []*Task
	killedMu sync.Mutex

	wakeCh chan struct{}
}

// Scheduler owns the process-wide shared state: the global run queue,
// global wait queue, the thread-set bitmaps, and the monotonic insertion
// counter (spec.md §3).
type Scheduler struct {
	RunqueueDepth int
	LowLatency    bool

	nthreads int
	threads  []*WorkerContext

	globalRQ   *runQueue
	globalRQMu sync.Mutex // spinlock analog per spec.md §5

	globalWQ *twait.Queue[*Task]

	globalTasksMask    tmask.Mask
	globalTasksMaskMu  sync.Mutex
	sleepingThreadMask tmask.Mask
	sleepingMu         sync.Mutex

	rqueueTicks uint64
}

// Config bundles the tunables of spec.md §6 relevant to the scheduler.
type Config struct {
	NThreads      int
	RunqueueDepth int
	LowLatency    bool
}

// NewScheduler constructs the shared state and one WorkerContext per
// thread, per cfg.NThreads.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.NThreads < 1 {
		cfg.NThreads = 1
	}
	if cfg.RunqueueDepth < 1 {
		cfg.RunqueueDepth = 200
	}
	s := &Scheduler{
		RunqueueDepth: cfg.RunqueueDepth,
		LowLatency:    cfg.LowLatency,
		nthreads:      cfg.NThreads,
		globalRQ:      newRunQueue(),
		globalWQ:      twait.New[*Task](64),
	}
	s.threads = make([]*WorkerContext, cfg.NThreads)
	for i := range s.threads {
		s.threads[i] = &WorkerContext{
			TID:          uint(i),
			Now:          0,
			sched:        s,
			localRQ:      newRunQueue(),
			localWQ:      twait.New[*Task](64),
			urgent:       &taskletList{},
			normal:       &taskletList{},
			bulk:         &taskletList{},
			sharedInbox:  &taskletList{},
			currentClass: noClass,
			wakeCh:       make(chan struct{}, 1),
		}
	}
	return s
}

// NThreads returns the configured worker-thread count.
func (s *Scheduler) NThreads() int { return s.nthreads }

// Thread returns the WorkerContext owning tid.
func (s *Scheduler) Thread(tid uint) *WorkerContext { return s.threads[tid] }

// Scheduler returns the Scheduler wc belongs to, so a caller handed a
// WorkerContext (e.g. at connection-init time) can reach the process-
// wide wakeup/migration entry points without threading a second
// parameter through everywhere a WorkerContext already flows.
func (wc *WorkerContext) Scheduler() *Scheduler { return wc.sched }

// AllThreadsMask returns a mask naming every live worker thread.
func (s *Scheduler) AllThreadsMask() tmask.Mask { return tmask.All(uint(s.nthreads)) }

func (s *Scheduler) nextRQKey() int64 {
	return int64(atomic.AddUint64(&s.rqueueTicks, 1))
}

func (s *Scheduler) orGlobalTasksMask(m tmask.Mask) {
	s.globalTasksMaskMu.Lock()
	s.globalTasksMask = s.globalTasksMask.Or(m)
	s.globalTasksMaskMu.Unlock()
}

func (s *Scheduler) markSleeping(tid uint) {
	s.sleepingMu.Lock()
	s.sleepingThreadMask.Set(tid)
	s.sleepingMu.Unlock()
}

func (s *Scheduler) clearSleeping(tid uint) {
	s.sleepingMu.Lock()
	s.sleepingThreadMask.Clear(tid)
	s.sleepingMu.Unlock()
}

// wakeThread clears tid's sleeping bit, if set, and signals its wake
// channel — the stand-in for the platform wakeup pipe/eventfd of
// spec.md §4.5.
func (s *Scheduler) wakeThread(tid uint) {
	s.sleepingMu.Lock()
	wasSleeping := s.sleepingThreadMask.Has(tid)
	s.sleepingThreadMask.Clear(tid)
	s.sleepingMu.Unlock()
	if !wasSleeping {
		return
	}
	select {
	case s.threads[tid].wakeCh <- struct{}{}:
	default:
	}
}

// wakeEligible wakes a sleeping thread among mask, if every thread named
// by mask is currently sleeping — spec.md §4.2's wakeup algorithm.
func (s *Scheduler) wakeEligible(mask tmask.Mask) {
	s.sleepingMu.Lock()
	allSleeping := true
	mask.Each(func(tid uint) {
		if !s.sleepingThreadMask.Has(tid) {
			allSleeping = false
		}
	})
	var wake uint
	var ok bool
	if allSleeping {
		wake, ok = mask.LowestSet()
		if ok {
			s.sleepingThreadMask.Clear(wake)
		}
	}
	s.sleepingMu.Unlock()
	if allSleeping && ok {
		select {
		case s.threads[wake].wakeCh <- struct{}{}:
		default:
		}
	}
}
