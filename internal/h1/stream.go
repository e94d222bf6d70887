package h1

// StreamFlags are the H1-stream feature flags of spec.md §3.
type StreamFlags uint16

const (
	FlagNotFirst StreamFlags = 1 << iota
	FlagBufFlush
	FlagSplicedData
	FlagParsingDone
	FlagHaveOConn
	FlagHaveSrvName
)

// WantMask is the tri-state connection-mode selector of spec.md §3.
type WantMask int

const (
	WantNone WantMask = iota
	WantKAL
	WantTUN
	WantCLO
)

// Stream is the H1-stream state of spec.md §3: a request and a response
// Message, plus the status/method/WANT_MSK/feature-flag bookkeeping
// layered on top of them.
type Stream struct {
	conn *Conn

	Req *Message
	Res *Message

	Want  WantMask
	Flags StreamFlags
}

func newStream(c *Conn) *Stream {
	res := NewMessage(StateRPBefore)
	res.Flags |= FlagResp
	return &Stream{
		conn: c,
		Req:  NewMessage(StateRQBefore),
		Res:  res,
	}
}

// progress drives the request-side parser against whatever bytes are
// currently in buf, per spec.md §4.6.2. The response side is formatted
// separately — spec.md §4.6 treats parsing and formatting as genuinely
// separate per-direction state machines, which this mirrors by keeping
// Req parsing here and Res formatting in FormatMessage, called from
// conn.go's WriteResponse.
func (s *Stream) progress(buf *Buffer) {
	isFrontendFirst := s.conn.isFrontend && s.conn.firstReq
	for {
		switch s.Req.State {
		case StateRQBefore:
			consumed, upgH2C, err := ParseHeaders(buf.Bytes(), s.Req, isFrontendFirst)
			if err == ErrNeedMore {
				return
			}
			if err != nil {
				s.conn.waitFlags |= FlagCSError
				return
			}
			buf.Consume(consumed)
			if upgH2C {
				s.conn.waitFlags |= FlagUpgH2C
				return // surrender to the machinery that swaps muxes
			}
			if s.Req.HasContentLengthConflict() {
				s.conn.waitFlags |= FlagCSError
				return
			}
		case StateData:
			// ParseBody is called even on an empty buffer: a zero-length
			// body transitions straight to Done without consuming any
			// bytes, and that transition must still happen here.
			consumed, err := ParseBody(buf.Bytes(), s.Req)
			if err != nil {
				s.conn.waitFlags |= FlagCSError
				return
			}
			buf.Consume(consumed)
			if consumed == 0 && s.Req.State == StateData {
				return // genuinely waiting for more bytes
			}
		case StateTrailers:
			consumed, err := ParseTrailers(buf.Bytes(), s.Req)
			if err != nil {
				s.conn.waitFlags |= FlagCSError
				return
			}
			buf.Consume(consumed)
			if consumed == 0 {
				return // waiting for more bytes
			}
		case StateDone, StateTunnel:
			s.Flags |= FlagParsingDone
			return
		default:
			return
		}
	}
}

// reset prepares the stream for the next request on a kept-alive
// connection, per spec.md §4.6.1's detach/idle-reuse path.
func (s *Stream) reset(isFrontend bool) {
	s.Req.Reset(StateRQBefore)
	s.Res.Reset(StateRPBefore)
	s.Res.Flags |= FlagResp
	s.Want = WantNone
	s.Flags |= FlagNotFirst
	s.Flags &^= FlagParsingDone | FlagHaveOConn
}
