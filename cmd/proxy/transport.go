package main

import (
	"net"
	"sync"

	"github.com/haproxy-core/mincore/internal/conn"
	"github.com/haproxy-core/mincore/internal/pool"
	"github.com/haproxy-core/mincore/internal/rendez"
)

// netTransport adapts a net.Conn to internal/conn.Transport. A real
// poller is a separate concern this demo doesn't implement; this stands
// in for it with one blocking-read goroutine per connection
// that fills an internal byte queue and notifies the waiter, so RcvBuf
// itself stays non-blocking the way the mux expects to call it from
// inside Wake. Good enough to drive the H1 mux end to end for this demo
// entrypoint without claiming to be a production event loop.
//
// Its read scratch buffer is drawn from a shared internal/pool.Pool
// rather than allocated per read, so the pump exercises the same
// allocator the rest of the scheduler core is built on.
type netTransport struct {
	nc  net.Conn
	tid uint

	scratchPool *pool.Pool
	rdv         *rendez.Rendezvous

	mu      sync.Mutex
	pending []byte
	rdErr   error
	waiter  conn.Waiter
	closed  bool
}

func newNetTransport(nc net.Conn, tid uint, scratchPool *pool.Pool, rdv *rendez.Rendezvous) *netTransport {
	return &netTransport{nc: nc, tid: tid, scratchPool: scratchPool, rdv: rdv}
}

func (t *netTransport) RcvBuf(dst []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := copy(dst, t.pending)
	t.pending = t.pending[n:]
	if n > 0 {
		return n, nil
	}
	if t.rdErr != nil {
		return 0, t.rdErr
	}
	return 0, nil
}

func (t *netTransport) SndBuf(src []byte) (int, error) {
	return t.nc.Write(src)
}

func (t *netTransport) Subscribe(events conn.Events, w conn.Waiter) error {
	t.mu.Lock()
	first := t.waiter == nil
	t.waiter = w
	t.mu.Unlock()
	if first && events&conn.EventRecv != 0 {
		go t.pumpReads()
	}
	return nil
}

func (t *netTransport) Unsubscribe(events conn.Events) error {
	return nil
}

// pumpReads blocks on the socket, queues whatever it reads, and notifies
// the waiter so it can drain the queue via RcvBuf.
func (t *netTransport) pumpReads() {
	for {
		scratch := t.scratchPool.Alloc(t.tid, t.rdv).([]byte)
		n, err := t.nc.Read(scratch)
		t.mu.Lock()
		if n > 0 {
			t.pending = append(t.pending, scratch[:n]...)
		}
		if err != nil {
			t.rdErr = err
		}
		w := t.waiter
		closed := t.closed
		t.mu.Unlock()
		t.scratchPool.Free(t.tid, scratch)

		if w != nil {
			w.Notify(conn.EventRecv)
		}
		if closed || err != nil {
			return
		}
	}
}

func (t *netTransport) ShutR() error { return nil }
func (t *netTransport) ShutW() error { return nil }

func (t *netTransport) Takeover(newOwner uint) error { return nil }

func (t *netTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.nc.Close()
}
