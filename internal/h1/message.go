// Package h1 implements the HTTP/1 multiplexer of spec.md §4.6: a
// per-direction parser/formatter state machine operating over
// internal/htx blocks, connection-mode resolution, output framing with
// a best-effort zero-copy-shaped fast path, header-case adjustment,
// a process-wide buffer-wait list, and timeout refresh.
//
// Grounded on the teacher's internal/http10 package: ParseRequest's
// request-line + CRLF header loop over a bufio.Reader is the direct
// ancestor of parseHeaders below, generalized from HTTP/1.0-only,
// single-shot, non-chunked parsing to the full HTTP/1.x state machine
// spec.md §4.6.2 calls for. response.go's "build a header map, then
// serialize" shape is the ancestor of format.go's output framing.
package h1

import "github.com/haproxy-core/mincore/internal/htx"

// ParserState is the per-direction state machine of spec.md §3.
type ParserState int

const (
	StateRQBefore ParserState = iota // request, before start-line
	StateRPBefore                    // response, before start-line
	StateHdrFirst
	StateHdrName
	StateHdrL2LWS
	StateLastLF
	StateData
	StateTrailers
	StateDone
	StateTunnel
)

// MsgFlags are the per-message flags of spec.md §3.
type MsgFlags uint32

const (
	FlagResp MsgFlags = 1 << iota
	FlagVer11
	FlagConnKAL
	FlagConnCLO
	FlagConnUPG
	FlagXferLen
	FlagCLen
	FlagChunked
	FlagMethConnect
	FlagMethHead
	FlagNoPHdr
	FlagCleanConnHdr
)

// Message is one direction's H1 message state (spec.md §3's "H1
// stream... two H1 messages").
type Message struct {
	State ParserState
	Flags MsgFlags

	Cursor      int   // next unconsumed byte in the input buffer
	BodyLen     int64 // declared content-length, or -1 if unknown
	ChunkLeft   int64 // bytes remaining in the current chunk
	BodySent    int64 // bytes of body consumed/produced so far

	ErrPos int // byte offset of a parse error, -1 if none

	HTX *htx.Message
}

// NewMessage returns a fresh message in the given initial state
// (StateRQBefore for a request, StateRPBefore for a response).
func NewMessage(initial ParserState) *Message {
	return &Message{State: initial, BodyLen: -1, ErrPos: -1, HTX: htx.New()}
}

// Reset returns m to a fresh state for a new message on the same H1
// stream (keep-alive reuse), per spec.md §4.6.1's pooled-stream reuse.
func (m *Message) Reset(initial ParserState) {
	m.State = initial
	m.Flags = 0
	m.Cursor = 0
	m.BodyLen = -1
	m.ChunkLeft = 0
	m.BodySent = 0
	m.ErrPos = -1
	m.HTX.Reset()
}

// IsRequest reports whether m is the request-side message.
func (m *Message) IsRequest() bool { return m.Flags&FlagResp == 0 }

// IsDone reports whether the message has reached DONE or TUNNEL.
func (m *Message) IsDone() bool {
	return m.State == StateDone || m.State == StateTunnel
}
