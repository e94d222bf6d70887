package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haproxy-core/mincore/internal/tick"
	"github.com/haproxy-core/mincore/internal/tmask"
)

func newTestScheduler(t *testing.T, n int) *Scheduler {
	t.Helper()
	return NewScheduler(Config{NThreads: n, RunqueueDepth: 64})
}

func TestWakeupInsertsIntoLocalRunQueueForSingleThreadAffinity(t *testing.T) {
	s := newTestScheduler(t, 2)
	wc0 := s.Thread(0)

	ran := make(chan struct{}, 1)
	task := NewTask(tmask.Single(0))
	task.Process = func(wc *WorkerContext, tk *Task, observed State) *Task {
		require.True(t, observed.Has(StateWokenOther))
		ran <- struct{}{}
		return nil
	}

	Wakeup(wc0, task, StateWokenOther)
	require.Equal(t, 1, wc0.localRQ.len())

	wc0.Pass()
	select {
	case <-ran:
	default:
		t.Fatal("expected task to have run")
	}
}

func TestWakeupRoutesMultiThreadAffinityToGlobalQueue(t *testing.T) {
	s := newTestScheduler(t, 3)
	wc0 := s.Thread(0)

	mask := tmask.All(3)
	task := NewTask(mask)
	task.Process = func(wc *WorkerContext, tk *Task, observed State) *Task { return nil }

	Wakeup(wc0, task, StateWokenIO)
	require.Equal(t, 0, wc0.localRQ.len())
	require.Equal(t, 1, s.globalRQ.len())
}

func TestWakeupIsNoopWhenAlreadyQueuedOrRunning(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	task := NewTask(tmask.Single(0))
	task.Process = func(wc *WorkerContext, tk *Task, observed State) *Task { return nil }

	Wakeup(wc0, task, StateWokenIO)
	require.Equal(t, 1, wc0.localRQ.len())
	Wakeup(wc0, task, StateWokenOther)
	require.Equal(t, 1, wc0.localRQ.len(), "second wakeup must not double-queue")
}

func TestKillForcesDetectionBeforeNextPass(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)

	freed := make(chan struct{}, 1)
	task := NewTask(tmask.Single(0))
	task.Process = func(wc *WorkerContext, tk *Task, observed State) *Task {
		require.True(t, observed.Has(StateKilled))
		freed <- struct{}{}
		return nil
	}

	Kill(wc0, task)
	wc0.Pass()

	select {
	case <-freed:
	default:
		t.Fatal("killed task must be processed within one pass")
	}
}

func TestRunQueueOrderingRespectsNiceBias(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)

	var order []string
	mk := func(id string, nice int) *Task {
		tk := NewTask(tmask.Single(0))
		tk.nice = nice
		tk.Process = func(wc *WorkerContext, self *Task, observed State) *Task {
			order = append(order, id)
			return nil
		}
		return tk
	}

	low := mk("low-priority", 100)
	high := mk("high-priority", -100)
	Wakeup(wc0, low, StateWokenOther)
	Wakeup(wc0, high, StateWokenOther)

	wc0.Pass()
	require.Equal(t, []string{"high-priority", "low-priority"}, order)
}

func TestTaskletPlacementSelfWakingGoesToBulk(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)

	tl := NewTasklet(-1)
	tl.state.or(StateSelfWaking)
	WakeTasklet(wc0, s, tl, StateWokenOther)
	require.Equal(t, 1, wc0.bulk.len())
}

func TestTaskletPlacementNoCurrentClassGoesUrgent(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	wc0.currentClass = noClass

	tl := NewTasklet(-1)
	WakeTasklet(wc0, s, tl, StateWokenOther)
	require.Equal(t, 1, wc0.urgent.len())
}

func TestTaskletPlacementFollowsCurrentClassOtherwise(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	wc0.currentClass = Bulk

	tl := NewTasklet(-1)
	WakeTasklet(wc0, s, tl, StateWokenOther)
	require.Equal(t, 1, wc0.bulk.len())
}

func TestWakeTaskletExternalRoutesThroughSharedInbox(t *testing.T) {
	s := newTestScheduler(t, 2)

	tl := NewTasklet(1)
	s.WakeTaskletExternal(tl, StateWokenIO)

	require.Equal(t, 1, s.Thread(1).sharedInbox.len())
	require.Equal(t, 0, s.Thread(1).urgent.len())
}

func TestWakeTaskletExternalIsNoopWhenAlreadyLinked(t *testing.T) {
	s := newTestScheduler(t, 1)

	tl := NewTasklet(0)
	s.WakeTaskletExternal(tl, StateWokenIO)
	s.WakeTaskletExternal(tl, StateWokenIO)

	require.Equal(t, 1, s.Thread(0).sharedInbox.len())
}

func TestTaskletSetThreadRetargets(t *testing.T) {
	tl := NewTasklet(0)
	tl.SetThread(3)
	require.Equal(t, 3, tl.tid)
}

func TestQueueMinorantRule(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	task := NewTask(tmask.Single(0))

	Queue(wc0, task, tick.Tick(1000))
	Queue(wc0, task, tick.Tick(5000)) // looser deadline: must not win
	require.Equal(t, tick.Tick(1000), task.Expire())

	Queue(wc0, task, tick.Tick(200)) // tighter deadline: must win
	require.Equal(t, tick.Tick(200), task.Expire())
}

func TestDestroySelfDefersFree(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	task := NewTask(tmask.Single(0))
	task.Process = func(wc *WorkerContext, self *Task, observed State) *Task {
		Destroy(wc, self)
		require.Nil(t, self.Process)
		return nil
	}
	Wakeup(wc0, task, StateWokenOther)
	wc0.Pass()
}

func TestPassRunsEveryQueuedTaskWithinBudget(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	const n = 10
	var ran int
	for i := 0; i < n; i++ {
		task := NewTask(tmask.Single(0))
		task.Process = func(wc *WorkerContext, self *Task, observed State) *Task {
			ran++
			return nil
		}
		Wakeup(wc0, task, StateWokenOther)
	}
	wc0.Pass()
	require.Equal(t, n, ran)
}

func TestWaitQueueExpiryWakesWithTimerReason(t *testing.T) {
	s := newTestScheduler(t, 1)
	wc0 := s.Thread(0)
	task := NewTask(tmask.Single(0))
	woke := make(chan State, 1)
	task.Process = func(wc *WorkerContext, self *Task, observed State) *Task {
		woke <- observed
		return nil
	}

	Queue(wc0, task, tick.Tick(10))
	expired := wc0.localWQ.Expired(tick.Tick(20))
	require.Len(t, expired, 1)
	Wakeup(wc0, expired[0], StateWokenTimer)
	wc0.Pass()

	select {
	case st := <-woke:
		require.True(t, st.Has(StateWokenTimer))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task to run")
	}
}
