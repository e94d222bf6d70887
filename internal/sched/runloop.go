package sched

import "time"

// Pass runs one iteration of the run-loop policy of spec.md §4.2: compute
// a CPU budget, weight the three tasklet classes, pull ready regular
// tasks into the NORMAL list, splice the shared inbox onto URGENT, then
// drain each class in URGENT → NORMAL → BULK order within its share of
// the budget. It loops back (bounded by the remaining budget) if any
// task was woken during the pass, per step 8.
func (wc *WorkerContext) Pass() {
	budget := wc.sched.RunqueueDepth
	for budget > 0 {
		processed, anyWoken := wc.passOnce(budget)
		budget -= processed
		if !anyWoken || processed == 0 {
			return
		}
	}
}

func (wc *WorkerContext) passOnce(remaining int) (processed int, anyWoken bool) {
	wc.drainKilled()

	maxProcessed := remaining
	if wc.anyNonZeroNice() {
		maxProcessed /= 4
	}
	if maxProcessed < 1 {
		maxProcessed = 1
	}

	weight := classWeight
	if wc.urgent.len() == 0 && wc.sharedInbox.len() == 0 {
		weight[Urgent] = 0
	}
	if wc.normal.len() == 0 && wc.localRQ.len() == 0 && wc.sched.globalRQ.len() == 0 {
		weight[Normal] = 0
	}
	if wc.bulk.len() == 0 {
		weight[Bulk] = 0
	}
	sum := weight[Urgent] + weight[Normal] + weight[Bulk]
	if sum == 0 {
		return 0, false
	}

	var classBudget [numClasses]int
	for c := Class(0); c < numClasses; c++ {
		if weight[c] == 0 {
			continue
		}
		classBudget[c] = ceilDiv(maxProcessed*weight[c], sum)
	}

	wc.pullRegularTasks(classBudget[Normal])
	wc.urgent.spliceFrom(wc.sharedInbox)

	for _, c := range [numClasses]Class{Urgent, Normal, Bulk} {
		left := classBudget[c]
		list := wc.listFor(c)
		for left > 0 {
			if wc.sched.LowLatency && c != Urgent && wc.urgent.len() > 0 {
				break // step 7: preempt to URGENT if it gained work mid-run
			}
			tl := list.popFront()
			if tl == nil {
				break
			}
			woken := wc.runTasklet(c, tl)
			processed++
			left--
			if woken {
				anyWoken = true
			}
		}
	}
	return processed, anyWoken
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// anyNonZeroNice approximates spec.md §4.2 step 1's "any task has a
// non-zero nice" by peeking the head of each run queue — exact tracking
// would require scanning every queued task every pass.
func (wc *WorkerContext) anyNonZeroNice() bool {
	if e := wc.localRQ.min(); e != nil && e.task.Nice() != 0 {
		return true
	}
	wc.sched.globalRQMu.Lock()
	e := wc.sched.globalRQ.min()
	wc.sched.globalRQMu.Unlock()
	return e != nil && e.task.Nice() != 0
}

// pullRegularTasks drains ready tasks from the local run queue, then the
// global one, tie-breaking towards the smaller key and towards local on
// ties (spec.md §4.2 step 4), wrapping each as a tasklet on the NORMAL
// list until max entries have been appended.
func (wc *WorkerContext) pullRegularTasks(limit int) {
	for i := 0; i < limit; i++ {
		localMin := wc.localRQ.min()

		wc.sched.globalRQMu.Lock()
		globalMin := wc.sched.globalRQ.min()
		var globalEntry *rqEntry
		takeGlobal := false
		if globalMin != nil && (localMin == nil || globalMin.key < localMin.key) {
			globalEntry = wc.sched.globalRQ.popMin()
			takeGlobal = true
		}
		wc.sched.globalRQMu.Unlock()

		var t *Task
		if takeGlobal {
			t = globalEntry.task
		} else if localMin != nil {
			wc.localRQ.popMin()
			t = localMin.task
		} else {
			return // both empty
		}
		wc.normal.pushBack(wc.wrapTask(t))
		wc.taskListSize++
	}
}

func (wc *WorkerContext) wrapTask(t *Task) *Tasklet {
	tl := NewTasklet(int(wc.TID))
	tl.ID = t.ID
	tl.Run = func(wc *WorkerContext, _ *Tasklet) *Tasklet {
		wc.runTask(t)
		return nil
	}
	return tl
}

// runTask executes a regular Task's Process function and re-queues it
// per spec.md §4.2 step 6.
func (wc *WorkerContext) runTask(t *Task) (woken bool) {
	// Consume the wake reasons as the task starts running, so that only a
	// wakeup arriving during Process leaves a WOKEN_* bit for step 6.
	var observed State
	for {
		observed = t.state.load()
		if t.state.cas(observed, (observed&^wokenMask)|StateRunning) {
			break
		}
	}
	prevCurrent := wc.current
	wc.current = t
	start := time.Now()

	var result *Task
	if t.Process != nil {
		result = t.Process(wc, t, observed)
	}

	elapsed := time.Since(start)
	t.cpuTime += int64(elapsed)
	t.calls++
	wc.current = prevCurrent
	t.state.clear(StateRunning | StateQueued)

	if result == nil {
		Free(t)
		return false
	}

	after := t.state.load()
	if after.WasWoken() {
		t.state.clear(wokenMask)
		Wakeup(wc, t, 0)
		return true
	}
	Queue(wc, t, t.Expire())
	return false
}

// runTasklet executes a Tasklet's Run function (clearing StateInList
// first so a self-wake during Run re-links it rather than being
// swallowed) and reports whether execution produced a wakeup.
func (wc *WorkerContext) runTasklet(c Class, tl *Tasklet) (woken bool) {
	tl.state.clear(StateInList)
	prevTasklet, prevClass := wc.currentTasklet, wc.currentClass
	wc.currentTasklet, wc.currentClass = tl, c
	defer func() { wc.currentTasklet, wc.currentClass = prevTasklet, prevClass }()

	if tl.state.load().Has(StateKilled) {
		return false
	}
	if tl.Run == nil {
		return false
	}
	before := tl.state.load()
	result := tl.Run(wc, tl)
	_ = result // tasklets do not re-queue themselves via return value; Run re-wakes explicitly if needed
	after := tl.state.load()
	return after != before && after.WasWoken()
}

func (wc *WorkerContext) drainKilled() {
	wc.killedMu.Lock()
	pending := wc.killed
	wc.killed = nil
	wc.killedMu.Unlock()

	for _, t := range pending {
		if t.Process != nil {
			t.state.or(StateRunning)
			wc.current = t
			t.Process(wc, t, t.state.load())
			wc.current = nil
		}
		t.state.clear(StateRunning | StateQueued)
	}
}
