package main

import (
	"github.com/haproxy-core/mincore/internal/conn"
	"github.com/haproxy-core/mincore/internal/fdtable"
	"github.com/haproxy-core/mincore/internal/h1"
	"github.com/haproxy-core/mincore/internal/htx"
	"github.com/haproxy-core/mincore/internal/runtime"
)

// serveRequest is the onReady callback h1.Init arms the connection's
// tasklet with: it runs once per completed request, on the tasklet's own
// owning thread, so it never races Wake's own parsing. It answers with a
// canned 200, and on a keep-alive-eligible Detach hands the connection
// off to the next worker thread so idle connections spread evenly
// across the scheduler instead of piling up on whichever thread
// happened to accept them. Building a real response body is the
// application layer's job, left out of scope just like the backend
// pool/LB/ACL collaborators; this stands in for that layer just far
// enough to drive the mux end to end for a demonstration frontend.
func serveRequest(sup *runtime.Supervisor, entry *fdtable.Entry, c *conn.Connection, h *h1.Conn, body string) {
	if h.RequestState() == h1.StateTunnel {
		return
	}

	h.BuildResponse(func(res *h1.Message) {
		res.HTX.Reset()
		res.HTX.AddStartLine(htx.BlockResSL, htx.StartLine{
			Status:  200,
			Reason:  "OK",
			Version: "HTTP/1.1",
		})
		res.HTX.AddHeader("Content-Type", "text/plain")
		res.HTX.AddEOH()
		res.HTX.AddData([]byte(body))
		res.HTX.AddEOM()
		res.BodyLen = int64(len(body))
		res.Flags |= h1.FlagCLen
	})

	h.WriteResponse()
	if !h.Detach() {
		return
	}

	migrateToNextThread(sup, entry, c, h)
}

// migrateToNextThread hands an idle, keep-alive-eligible connection to
// the next worker thread round-robin, exercising the same
// Connection.Takeover/fdtable.Entry.Takeover path a real load-balancing
// rebalance would use. Single-thread configurations have nowhere to
// migrate to, so this is a no-op there.
func migrateToNextThread(sup *runtime.Supervisor, entry *fdtable.Entry, c *conn.Connection, h *h1.Conn) {
	nthreads := uint(sup.Scheduler.NThreads())
	if nthreads < 2 {
		return
	}
	newOwner := (c.Owner() + 1) % nthreads

	err := c.Takeover(entry, newOwner, func() error {
		h.Rebind(sup.Scheduler.Thread(newOwner))
		return nil
	})
	if err != nil {
		c.Release()
	}
}
