package h1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haproxy-core/mincore/internal/conn"
	"github.com/haproxy-core/mincore/internal/sched"
	"github.com/haproxy-core/mincore/internal/tick"
)

func newTestSchedulerForConn(t *testing.T, n int) *sched.Scheduler {
	t.Helper()
	return sched.NewScheduler(sched.Config{NThreads: n, RunqueueDepth: 64})
}

// TestNotifyDrivesWakeThroughTheSchedulerNotDirectly covers the wiring
// spec.md §1 requires: a transport readiness signal arms the mux's
// tasklet instead of running Wake synchronously on the calling
// goroutine, and the parser/onReady callback only actually execute once
// the owning thread's run-loop processes that tasklet.
func TestNotifyDrivesWakeThroughTheSchedulerNotDirectly(t *testing.T) {
	s := newTestSchedulerForConn(t, 2)
	wc0 := s.Thread(0)

	tr := &fakeTransport{recvQueue: [][]byte{[]byte("GET / HTTP/1.1\r\n\r\n")}}
	c := conn.New(conn.Target{Name: "front"}, tr, 0)

	var ready bool
	h, err := Init(c, true, Timeouts{}, Options{}, nil, NewBufWaitList(4), nil, wc0, func(*Conn) {
		ready = true
	})
	require.NoError(t, err)

	h.Notify(conn.EventRecv)
	require.False(t, ready, "onReady must not run synchronously from Notify")
	require.False(t, h.RequestDone(), "Wake must not run synchronously from Notify either")

	wc0.Pass()
	require.True(t, h.RequestDone())
	require.True(t, ready)
}

// TestIdleKeepAliveTimeoutTaskReleasesConnection covers spec.md §8
// scenario 5: once a connection is idle awaiting its next request, a
// real sched.Task carries the keep-alive deadline, and once the run-
// loop reaps it past that deadline the connection is released.
func TestIdleKeepAliveTimeoutTaskReleasesConnection(t *testing.T) {
	s := newTestSchedulerForConn(t, 1)
	wc0 := s.Thread(0)

	tr := &fakeTransport{}
	c := conn.New(conn.Target{Name: "front"}, tr, 0)

	to := Timeouts{Client: 10, HTTPKeepAlive: 10}
	h, err := Init(c, true, to, Options{}, nil, NewBufWaitList(4), []byte("GET / HTTP/1.1\r\n\r\n"), wc0, nil)
	require.NoError(t, err)

	h.Wake()
	h.mode = ModeKAL
	require.True(t, h.Detach())

	wc0.Step(tick.Tick(5))
	require.False(t, tr.closed, "deadline hasn't elapsed yet")

	wc0.Step(tick.Tick(20))
	require.True(t, tr.closed, "timeout task should have released the connection")
}
