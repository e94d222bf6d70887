package h1

import (
	"sync"

	"github.com/haproxy-core/mincore/internal/conn"
	"github.com/haproxy-core/mincore/internal/sched"
	"github.com/haproxy-core/mincore/internal/tick"
	"github.com/haproxy-core/mincore/internal/tmask"
)

// WaitFlags enumerate every reason input or output is blocked, per
// spec.md §3's H1-connection flag set.
type WaitFlags uint32

const (
	FlagInAlloc WaitFlags = 1 << iota
	FlagOutAlloc
	FlagInFull
	FlagOutFull
	FlagInBusy
	FlagCSError
	FlagCSShutwNow
	FlagCSShutdown
	FlagCSIdle
	FlagWaitNextReq
	FlagUpgH2C
	FlagCOMsgMore
	FlagCOStreamer
)

// Conn is the H1-connection mux state of spec.md §3: the per-connection
// state shared by the single stream it may carry. It implements
// conn.Mux.
type Conn struct {
	mu sync.Mutex

	connection *conn.Connection
	isFrontend bool
	firstReq   bool

	inBuf  *Buffer
	outBuf *Buffer

	stream *Stream

	timeouts Timeouts
	opt      Options
	caseMap  *CaseMap

	waitFlags WaitFlags
	mode      Mode
	haveOConn bool

	expire tick.Tick

	bufWait *BufWaitList

	wc          *sched.WorkerContext
	tasklet     *sched.Tasklet
	timeoutTask *sched.Task
	onReady     func(*Conn)
}

// Init adopts inputCarryOver (bytes already read ahead of the mux, per
// spec.md §4.6.1), allocates the H1 connection and its single stream,
// and subscribes to RECV. A non-nil error means the caller must close
// the connection.
//
// If wc is non-nil, Init also creates the tasklet that is the mux's unit
// of scheduled work (spec.md §1: the mux runs exclusively as scheduled
// tasks/tasklets, never as a bare goroutine calling a handler directly)
// and the task that carries the connection's idle/keep-alive timeout
// (spec.md §4.6.1/§4.6.7). onReady, if non-nil, is invoked from inside
// the tasklet once a request has fully parsed — the seam the app layer
// (out of scope here, same as the backend pool/LB/ACL collaborators)
// plugs its response-building into.
func Init(c *conn.Connection, isFrontend bool, to Timeouts, opt Options, caseMap *CaseMap, bufWait *BufWaitList, inputCarryOver []byte, wc *sched.WorkerContext, onReady func(*Conn)) (*Conn, error) {
	h := &Conn{
		connection: c,
		isFrontend: isFrontend,
		firstReq:   true,
		inBuf:      NewBuffer(make([]byte, 0, 16*1024)),
		outBuf:     NewBuffer(make([]byte, 0, 16*1024)),
		timeouts:   to,
		opt:        opt,
		caseMap:    caseMap,
		bufWait:    bufWait,
		expire:     tick.Eternity,
		wc:         wc,
		onReady:    onReady,
	}
	h.inBuf.Append(inputCarryOver)
	h.stream = newStream(h)
	c.SetMux(h)

	if wc != nil {
		h.tasklet = sched.NewTasklet(int(wc.TID))
		h.tasklet.Run = h.runTasklet
		h.timeoutTask = sched.NewTask(tmask.Single(wc.TID))
		h.timeoutTask.Process = h.timeoutProcess
		h.refreshExpireLocked(wc.Now)
	}

	if t := c.Transport(); t != nil {
		if err := t.Subscribe(conn.EventRecv, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// runTasklet is the tasklet's TaskletFunc: it does the mux's own share
// of the work (drain the send buffer, run the parser, same as Wake)
// and, once a request is fully parsed, hands control to onReady so the
// app layer can build and send a response without racing Wake's own
// field access. It always returns nil — the tasklet is re-armed by the
// next readiness wakeup (WakeTaskletExternal), not by self-scheduling.
func (h *Conn) runTasklet(wc *sched.WorkerContext, tl *sched.Tasklet) *sched.Tasklet {
	h.Wake()
	if h.onReady != nil && h.RequestDone() {
		h.onReady(h)
	}
	return nil
}

// timeoutProcess is the timeout task's ProcessFunc: if the connection's
// deadline has actually elapsed it releases the connection, otherwise it
// is a spurious/early wake and the task is simply left to be re-queued
// by the run-loop at its current Expire() (spec.md §4.6.7/§8 scenario 5's
// "timeout task runs, connection released").
func (h *Conn) timeoutProcess(wc *sched.WorkerContext, t *sched.Task, observed sched.State) *sched.Task {
	h.mu.Lock()
	expire := h.expire
	h.mu.Unlock()
	if !tick.IsExpired(expire, wc.Now) {
		return t
	}
	h.connection.Release()
	return nil
}

// Rebind re-homes h onto wc's worker thread after a
// conn.Connection.Takeover, migrating the tasklet and the timeout
// task's affinity to match. Must be called from the thread that
// currently owns h (so neither the tasklet nor the timeout task is
// concurrently queued or running elsewhere).
func (h *Conn) Rebind(wc *sched.WorkerContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wc = wc
	if h.tasklet != nil {
		h.tasklet.SetThread(int(wc.TID))
	}
	if h.timeoutTask != nil {
		sched.SetAffinity(h.timeoutTask, tmask.Single(wc.TID))
	}
}

// CtlReady reports MUX_STATUS per spec.md §4.6.1: ready once the
// transport handshake is complete. This mux has no separate handshake
// of its own, so it is ready as soon as it has a stream.
func (h *Conn) CtlReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream != nil
}

// Notify implements conn.Waiter: the transport calls this when a
// subscribed RECV/SEND event fires. Per spec.md §1/§4.6.1 the mux runs
// exclusively as a scheduled tasklet, so a wired-up connection (wc/
// tasklet non-nil) only ever arms that tasklet here; Wake itself runs
// later, on the owning thread's own run-loop pass. Without a scheduler
// (unit tests constructing a Conn directly) Notify falls back to
// calling Wake synchronously.
func (h *Conn) Notify(ev conn.Events) {
	if h.wc != nil && h.tasklet != nil {
		h.wc.Scheduler().WakeTaskletExternal(h.tasklet, sched.StateWokenIO)
		return
	}
	h.Wake()
}

// Wake implements spec.md §4.6.1's wake(): drain the send buffer, run
// the parser/formatter, delegate to the app-layer wake.
func (h *Conn) Wake() {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.connection.Transport()
	if t == nil {
		return
	}

	if h.outBuf.Len() > 0 {
		n, err := t.SndBuf(h.outBuf.Bytes())
		if err != nil {
			h.connection.SetFlag(conn.FlagError)
			h.waitFlags |= FlagCSError
			return
		}
		h.outBuf.Consume(n)
	}

	h.pumpRecv(t)
	h.refreshExpireLocked(h.now())
}

func (h *Conn) pumpRecv(t conn.Transport) {
	if h.stream == nil {
		return
	}
	scratch := make([]byte, 4096)
	n, err := t.RcvBuf(scratch)
	if n > 0 {
		h.inBuf.Append(scratch[:n])
	}
	if err != nil {
		// Every transport read error, io.EOF included, is treated as
		// fatal; EOF is not told apart, so FinishCloseDelimited is never
		// called from here.
		h.connection.SetFlag(conn.FlagError)
		h.waitFlags |= FlagCSError
	}
	h.stream.progress(h.inBuf)
}

// Subscribe/Unsubscribe forward to the transport, recording interest on
// behalf of the app-layer conn_stream (spec.md §4.6.1).
func (h *Conn) Subscribe(events conn.Events) error {
	if t := h.connection.Transport(); t != nil {
		return t.Subscribe(events, h)
	}
	return nil
}

func (h *Conn) Unsubscribe(events conn.Events) error {
	if t := h.connection.Transport(); t != nil {
		return t.Unsubscribe(events)
	}
	return nil
}

// ShutR/ShutW implement spec.md §4.6.1's half-close: semi-closed
// connections switch to the short clientfin/serverfin timeout; shutw is
// deferred if the output buffer is non-empty.
func (h *Conn) ShutR() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waitFlags |= FlagCSShutdown
	h.refreshExpireLocked(h.now())
	if t := h.connection.Transport(); t != nil {
		return t.ShutR()
	}
	return nil
}

func (h *Conn) ShutW(now bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !now && h.outBuf.Len() > 0 {
		h.waitFlags |= FlagCSShutwNow
		h.refreshExpireLocked(h.now())
		return nil // deferred until the output buffer drains
	}
	h.refreshExpireLocked(h.now())
	if t := h.connection.Transport(); t != nil {
		return t.ShutW()
	}
	return nil
}

// AvailStreams/UsedStreams/GetFirstCS are spec.md §4.6.1's trivial
// accessors: an H1 connection carries 0 or 1 streams.
func (h *Conn) AvailStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return 1
	}
	return 0
}

func (h *Conn) UsedStreams() int { return 1 - h.AvailStreams() }

func (h *Conn) GetFirstCS() *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream
}

// RequestDone reports whether the current stream's request has reached
// DONE or TUNNEL, under the same lock Wake uses to drive the parser, so
// an app layer polling this doesn't race the mux's own reads of Req.
func (h *Conn) RequestDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream == nil || h.stream.Req.IsDone()
}

// RequestState returns the current stream's request parser state under
// the connection lock.
func (h *Conn) RequestState() ParserState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return StateDone
	}
	return h.stream.Req.State
}

// BuildResponse runs fn against the current stream's response message
// under the connection lock, so an app layer filling in status/headers/
// body doesn't race WriteResponse's own reads of the same message.
func (h *Conn) BuildResponse(fn func(res *Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return
	}
	fn(h.stream.Res)
}

// Detach implements spec.md §4.6.1: the app-layer released its end. If
// the connection is idle, keep-alive-eligible, and reuse is permitted,
// the caller (proxy-side idle-list owner) should put it on an idle
// list; otherwise Detach releases the connection outright. This mux
// only resets its own per-stream state and reports eligibility; idle-
// list bookkeeping is the backend pool's concern (out of scope, named
// only as a collaborator).
func (h *Conn) Detach() (idleEligible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode != ModeKAL || h.connection.HasFlag(conn.FlagError) {
		h.connection.Release()
		return false
	}
	h.stream.reset(h.isFrontend)
	h.haveOConn = false
	h.waitFlags |= FlagWaitNextReq
	h.firstReq = false
	h.refreshExpireLocked(h.now())
	return true
}

// WriteResponse hands the stream's filled-in response Message to
// ResolveMode/FormatMessage and queues the formatted bytes for output,
// per spec.md §4.6.3/§4.6.4. Building the response content itself is
// the app layer's job (out of scope here, same as the backend
// pool/LB/ACL collaborators spec.md names); this is the mux-side half
// of the round trip once that content exists.
func (h *Conn) WriteResponse() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return
	}
	h.mode = ResolveMode(h.stream.Req, h.stream.Res, h.isFrontend, h.opt)
	h.stream.Want = wantFromMode(h.mode)

	opt := FormatOptions{
		CaseMap:   h.caseMap,
		Mode:      h.mode,
		HaveOConn: h.haveOConn,
	}
	_, _ = FormatMessage(h.outBuf, h.stream.Res, opt)
	h.haveOConn = true

	if t := h.connection.Transport(); t != nil && h.outBuf.Len() > 0 {
		n, err := t.SndBuf(h.outBuf.Bytes())
		if err != nil {
			h.connection.SetFlag(conn.FlagError)
			h.waitFlags |= FlagCSError
			return
		}
		h.outBuf.Consume(n)
	}

	if h.mode == ModeCLO {
		h.waitFlags |= FlagCSShutwNow
	}
	h.refreshExpireLocked(h.now())
}

func wantFromMode(m Mode) WantMask {
	switch m {
	case ModeTUN:
		return WantTUN
	case ModeCLO:
		return WantCLO
	default:
		return WantKAL
	}
}

// RefreshExpire recomputes and returns the connection's timeout task
// deadline, per spec.md §4.6.7.
func (h *Conn) RefreshExpire(now tick.Tick) tick.Tick {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshExpireLocked(now)
}

// refreshExpireLocked is RefreshExpire's body, callable from methods
// that already hold h.mu. Every site that changes a flag RefreshTimeout
// reads (ShutR/ShutW/Detach/WriteResponse/Wake) calls this on its way
// out, and — when the connection is wired to a scheduler — reschedules
// the timeout task via sched.Schedule so a real task actually carries
// the new deadline (spec.md §8 scenario 5), instead of RefreshExpire
// only ever recomputing a value nothing reads.
func (h *Conn) refreshExpireLocked(now tick.Tick) tick.Tick {
	st := ConnState{
		HalfClosed:      h.waitFlags&FlagCSShutdown != 0,
		ShutwNow:        h.waitFlags&FlagCSShutwNow != 0,
		OutputPending:   h.outBuf.Len() > 0,
		AwaitingNextReq: h.waitFlags&FlagWaitNextReq != 0,
		IsFrontend:      h.isFrontend,
	}
	h.expire = RefreshTimeout(now, st, h.timeouts)
	if h.wc != nil && h.timeoutTask != nil {
		sched.Schedule(h.wc, h.timeoutTask, h.expire)
	}
	return h.expire
}

// now returns the wired scheduler's current tick, or the zero tick if h
// was constructed without one (e.g. a unit test driving Wake directly).
func (h *Conn) now() tick.Tick {
	if h.wc != nil {
		return h.wc.Now
	}
	return 0
}

// getBuf attempts an allocation via alloc; on failure it
// registers cb on the process-wide buffer-wait list per spec.md §4.6.6
// and sets the relevant *_ALLOC flag.
func (h *Conn) getBuf(isOutput bool, alloc func() ([]byte, bool), cb BufAvailable) ([]byte, bool) {
	if b, ok := alloc(); ok {
		return b, true
	}
	if isOutput {
		h.waitFlags |= FlagOutAlloc
	} else {
		h.waitFlags |= FlagInAlloc
	}
	if h.bufWait != nil {
		h.bufWait.Register(cb)
	}
	return nil, false
}

// clearAllocFlag clears IN_ALLOC/OUT_ALLOC once getBuf's waiter
// succeeds, per spec.md §4.6.6.
func (h *Conn) clearAllocFlag(isOutput bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if isOutput {
		h.waitFlags &^= FlagOutAlloc
	} else {
		h.waitFlags &^= FlagInAlloc
	}
}
