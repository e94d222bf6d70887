// Package htx implements the block-oriented HTTP intermediate
// representation of spec.md §6: a message is a flat, ordered sequence
// of typed blocks (REQ_SL, RES_SL, HDR, EOH, DATA, TLR, EOT, EOM)
// shared across muxes, so the application layer never parses wire bytes
// directly.
//
// The teacher represents a request as one flat struct (method/target/
// proto/header map) built in one pass by internal/http10.ParseRequest.
// htx.Message keeps that "headers are a map-like, ordered collection"
// shape but represents the whole message — start line, headers, body,
// trailers, end markers — as the append-only block sequence the
// specification calls for, so the H1 mux can be swapped for another
// wire format later without the application layer noticing.
package htx

// BlockType tags one block in a Message.
type BlockType int

const (
	BlockUnused BlockType = iota
	BlockReqSL            // request start-line: method, target, version
	BlockResSL            // response start-line: version, status, reason
	BlockHdr              // one header field
	BlockEOH              // end of headers
	BlockData             // a body chunk
	BlockTlr              // one trailer field
	BlockEOT              // end of trailers
	BlockEOM              // end of message
)

func (t BlockType) String() string {
	switch t {
	case BlockReqSL:
		return "REQ_SL"
	case BlockResSL:
		return "RES_SL"
	case BlockHdr:
		return "HDR"
	case BlockEOH:
		return "EOH"
	case BlockData:
		return "DATA"
	case BlockTlr:
		return "TLR"
	case BlockEOT:
		return "EOT"
	case BlockEOM:
		return "EOM"
	default:
		return "UNUSED"
	}
}

// StartLine is the payload of a REQ_SL or RES_SL block.
type StartLine struct {
	Method  string // request only
	Target  string // request only
	Status  int    // response only
	Reason  string // response only
	Version string // "HTTP/1.0" or "HTTP/1.1"
}

// Header is the payload of an HDR or TLR block.
type Header struct {
	Name  string
	Value string
}

// Block is one entry in a Message's block sequence.
type Block struct {
	Type   BlockType
	Line   StartLine
	Header Header
	Data   []byte
}

// Message is an ordered sequence of blocks, per spec.md §6.
type Message struct {
	blocks []Block
}

// New returns an empty message.
func New() *Message { return &Message{} }

// AddStartLine appends a REQ_SL or RES_SL block. Callers choose the
// type; a Message does not enforce request-vs-response shape beyond
// what the H1 parser already guarantees.
func (m *Message) AddStartLine(t BlockType, sl StartLine) {
	m.blocks = append(m.blocks, Block{Type: t, Line: sl})
}

// AddHeader appends an HDR block.
func (m *Message) AddHeader(name, value string) {
	m.blocks = append(m.blocks, Block{Type: BlockHdr, Header: Header{Name: name, Value: value}})
}

// AddEOH appends the end-of-headers marker.
func (m *Message) AddEOH() {
	m.blocks = append(m.blocks, Block{Type: BlockEOH})
}

// AddData appends a DATA block. The slice is retained, not copied;
// callers must not mutate it afterwards.
func (m *Message) AddData(b []byte) {
	if len(b) == 0 {
		return
	}
	m.blocks = append(m.blocks, Block{Type: BlockData, Data: b})
}

// AddTrailer appends a TLR block.
func (m *Message) AddTrailer(name, value string) {
	m.blocks = append(m.blocks, Block{Type: BlockTlr, Header: Header{Name: name, Value: value}})
}

// AddEOT appends the end-of-trailers marker.
func (m *Message) AddEOT() {
	m.blocks = append(m.blocks, Block{Type: BlockEOT})
}

// AddEOM appends the end-of-message marker.
func (m *Message) AddEOM() {
	m.blocks = append(m.blocks, Block{Type: BlockEOM})
}

// Blocks returns the message's block sequence, in order. The returned
// slice must be treated as read-only.
func (m *Message) Blocks() []Block { return m.blocks }

// Len reports the number of blocks.
func (m *Message) Len() int { return len(m.blocks) }

// StartLine returns the message's start-line block, if present.
func (m *Message) StartLine() (StartLine, bool) {
	for _, b := range m.blocks {
		if b.Type == BlockReqSL || b.Type == BlockResSL {
			return b.Line, true
		}
	}
	return StartLine{}, false
}

// Headers returns every HDR block's payload, in order.
func (m *Message) Headers() []Header {
	var out []Header
	for _, b := range m.blocks {
		if b.Type == BlockHdr {
			out = append(out, b.Header)
		}
	}
	return out
}

// HasEOM reports whether the message has been terminated.
func (m *Message) HasEOM() bool {
	for _, b := range m.blocks {
		if b.Type == BlockEOM {
			return true
		}
	}
	return false
}

// Reset clears the message for reuse (pool recycling per spec.md §4.4).
func (m *Message) Reset() { m.blocks = m.blocks[:0] }
