// Package conn implements the Connection abstraction of spec.md §3: an
// immutable target, an opaque transport-layer capability table, a mux
// pointer, a flag word, and single-thread ownership transferable by
// takeover.
//
// Grounded on the teacher's internal/server.HandleConn, which reads
// directly off a net.Conn inline; here the net.Conn (or any other
// transport) is hidden behind the Transport capability interface of
// spec.md §6 so the mux (internal/h1) never touches the wire directly —
// config/TLS/the poller are out-of-scope collaborators per spec.md's
// own scope note, so Transport is the seam where a real poller-backed
// implementation plugs in later.
package conn

import (
	"sync"

	"github.com/haproxy-core/mincore/internal/ids"
)

// Flags are the per-connection bits of spec.md §3.
type Flags uint32

const (
	FlagError Flags = 1 << iota
	FlagSockRDShut
	FlagSockWRShut
	FlagWaitXprt
)

// ListMask selects which idle list (if any) a connection belongs to.
type ListMask uint8

const (
	ListNone ListMask = iota
	ListSafe
	ListIdle
)

// Target names what a connection is talking to: a listener-side
// acceptance or a server-side dial. Out-of-scope collaborators (ACL,
// backend pool/LB) are represented only by this opaque identity, per
// spec.md's explicit scope boundary.
type Target struct {
	Name      string
	IsServer  bool
}

// Transport is the capability table of spec.md §6: rcv_buf/snd_buf/
// rcv_pipe/snd_pipe/subscribe/unsubscribe/shutr/shutw/takeover. rcv_pipe
// and snd_pipe are omitted here — the zero-copy kernel-splice fast path
// is a Linux-specific optimization with no portable Go equivalent, and
// spec.md §4.6.4 already permits a non-splice path.
type Transport interface {
	RcvBuf(dst []byte) (n int, err error)
	SndBuf(src []byte) (n int, err error)
	Subscribe(events Events, waiter Waiter) error
	Unsubscribe(events Events) error
	ShutR() error
	ShutW() error
	Takeover(newOwner uint) error
	Close() error
}

// Events is the RECV/SEND subscription bitmask of spec.md §4.6.1.
type Events uint8

const (
	EventRecv Events = 1 << iota
	EventSend
)

// Waiter is woken by the transport when a subscribed event fires.
type Waiter interface {
	Notify(ev Events)
}

// Mux is the capability table a connection's attached mux exposes
// (spec.md §4.6.1); internal/h1.Conn implements it.
type Mux interface {
	Wake()
	CtlReady() bool
}

// Connection is spec.md §3's Connection: immutable target, transport,
// mux, flags, destroy callback, and single-thread ownership.
type Connection struct {
	ID     string
	Target Target

	mu        sync.Mutex
	transport Transport
	mux       Mux
	flags     Flags
	listMask  ListMask
	owner     uint
	destroy   func()
}

// New constructs a Connection owned initially by thread owner.
func New(target Target, transport Transport, owner uint) *Connection {
	id, err := ids.New()
	if err != nil {
		panic("conn: id generation failed: " + err.Error())
	}
	return &Connection{ID: id, Target: target, transport: transport, owner: owner}
}

// Transport returns the connection's transport capability table.
func (c *Connection) Transport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// SetMux attaches a mux to the connection.
func (c *Connection) SetMux(m Mux) {
	c.mu.Lock()
	c.mux = m
	c.mu.Unlock()
}

// Mux returns the attached mux, or nil.
func (c *Connection) Mux() Mux {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mux
}

// SetFlag ORs bits into the connection's flag word.
func (c *Connection) SetFlag(bits Flags) {
	c.mu.Lock()
	c.flags |= bits
	c.mu.Unlock()
}

// ClearFlag ANDs bits out of the connection's flag word.
func (c *Connection) ClearFlag(bits Flags) {
	c.mu.Lock()
	c.flags &^= bits
	c.mu.Unlock()
}

// HasFlag reports whether every bit in bits is set.
func (c *Connection) HasFlag(bits Flags) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags&bits == bits
}

// SetListMask records which idle list the connection belongs to.
func (c *Connection) SetListMask(m ListMask) {
	c.mu.Lock()
	c.listMask = m
	c.mu.Unlock()
}

// ListMask returns the connection's current idle-list membership.
func (c *Connection) ListMask() ListMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listMask
}

// Owner returns the thread that currently exclusively owns c.
func (c *Connection) Owner() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// SetDestroy installs the callback Release invokes.
func (c *Connection) SetDestroy(fn func()) {
	c.mu.Lock()
	c.destroy = fn
	c.mu.Unlock()
}

// Release tears the connection down: closes the transport and invokes
// the destroy callback, if any.
func (c *Connection) Release() {
	c.mu.Lock()
	transport := c.transport
	destroy := c.destroy
	c.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}
	if destroy != nil {
		destroy()
	}
}
