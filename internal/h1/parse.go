package h1

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/haproxy-core/mincore/internal/htx"
)

// ErrNeedMore signals that buf does not yet contain a complete
// start-line/header block or body chunk; the caller should return and
// wait for more bytes rather than treating this as malformed input.
var ErrNeedMore = errors.New("h1: need more data")

// ErrMalformed is a parse failure distinct from ErrNeedMore: the bytes
// seen so far can never become valid HTTP/1, per spec.md §4.6.2's error
// handling ("any parse failure sets REQ_ERROR or RES_ERROR").
type ErrMalformed struct {
	Reason string
	Offset int
}

func (e *ErrMalformed) Error() string {
	return "h1: malformed message: " + e.Reason
}

// h2Preface is the 24-byte HTTP/2 connection preface of spec.md §6.
const h2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// ParseHeaders consumes up to the CRLF-CRLF terminating the headers of
// buf, per spec.md §4.6.2 step 1. On success it populates m's HTX
// start-line and header blocks plus EOH, sets CHNK/CLEN/CONN_* flags,
// transitions m.State to StateData (or StateTunnel's predecessor —
// callers resolve tunnel entry via ResolveMode after seeing the
// response), and returns the number of bytes consumed. It returns
// ErrNeedMore if buf does not yet contain a full header block, or
// *ErrMalformed if it never can.
//
// isFrontendFirst selects the HTTP/2 preface check of spec.md §4.6.2
// ("for frontend first-request, if the 24-byte preface matches...").
func ParseHeaders(buf []byte, m *Message, isFrontendFirst bool) (consumed int, upgradeH2C bool, err error) {
	if isFrontendFirst && len(buf) >= len(h2Preface) && string(buf[:len(h2Preface)]) == h2Preface {
		return len(h2Preface), true, nil
	}

	end := bytes.Index(buf, []byte("\r\n\r\n"))
	if end < 0 {
		if len(buf) > maxHeaderBytes {
			return 0, false, &ErrMalformed{Reason: "header block too large", Offset: len(buf)}
		}
		return 0, false, ErrNeedMore
	}
	headerBlock := buf[:end+2] // keep the final CRLF that ends the start-line/header list
	total := end + 4          // consumed bytes including the blank-line CRLF

	lines := strings.Split(string(headerBlock), "\r\n")
	// Split on "\r\n" over a block ending in "\r\n" yields a trailing
	// empty element; drop it.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return 0, false, &ErrMalformed{Reason: "empty header block", Offset: 0}
	}

	if m.IsRequest() {
		if err := parseRequestLine(lines[0], m); err != nil {
			return 0, false, err
		}
	} else {
		if err := parseStatusLine(lines[0], m); err != nil {
			return 0, false, err
		}
	}

	for i, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return 0, false, &ErrMalformed{Reason: "header line missing ':'", Offset: headerLineOffset(lines, i+1)}
		}
		applyHeaderFlags(m, name, value)
		if name == ":" || strings.HasPrefix(name, ":") {
			continue // pseudo-headers rejected on the wire, per spec.md §6
		}
		m.HTX.AddHeader(name, value)
	}
	m.HTX.AddEOH()

	resolveXferLen(m)
	m.State = StateData
	return total, false, nil
}

const maxHeaderBytes = 64 * 1024

func headerLineOffset(lines []string, idx int) int {
	n := 0
	for i := 0; i < idx; i++ {
		n += len(lines[i]) + 2
	}
	return n
}

func parseRequestLine(line string, m *Message) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return &ErrMalformed{Reason: "malformed request-line", Offset: 0}
	}
	method, target, version := parts[0], parts[1], parts[2]
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return &ErrMalformed{Reason: "unsupported protocol version", Offset: 0}
	}
	if version == "HTTP/1.1" {
		m.Flags |= FlagVer11
	}
	if method == "CONNECT" {
		m.Flags |= FlagMethConnect
	}
	if method == "HEAD" {
		m.Flags |= FlagMethHead
	}
	m.HTX.AddStartLine(htx.BlockReqSL, htx.StartLine{Method: method, Target: target, Version: version})
	return nil
}

func parseStatusLine(line string, m *Message) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return &ErrMalformed{Reason: "malformed status-line", Offset: 0}
	}
	version := parts[0]
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return &ErrMalformed{Reason: "unsupported protocol version", Offset: 0}
	}
	if version == "HTTP/1.1" {
		m.Flags |= FlagVer11
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return &ErrMalformed{Reason: "malformed status code", Offset: 0}
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	m.HTX.AddStartLine(htx.BlockResSL, htx.StartLine{Status: status, Reason: reason, Version: version})
	return nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(line[:i])), strings.TrimSpace(line[i+1:]), true
}

func applyHeaderFlags(m *Message, name, value string) {
	switch name {
	case "content-length":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			if m.Flags&FlagCLen != 0 && m.BodyLen != n {
				// Contradictory Content-Length: reject per spec.md §4.6.2's
				// "either rejected or ignored per proxy option" — this
				// implementation's default is reject.
				m.ErrPos = -2 // sentinel checked by caller via HasContentLengthConflict
				return
			}
			m.Flags |= FlagCLen
			m.BodyLen = n
		}
	case "transfer-encoding":
		if strings.Contains(strings.ToLower(value), "chunked") {
			m.Flags |= FlagChunked
		}
	case "connection":
		for _, tok := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "keep-alive":
				m.Flags |= FlagConnKAL
			case "close":
				m.Flags |= FlagConnCLO
			case "upgrade":
				m.Flags |= FlagConnUPG
			}
		}
	}
}

// HasContentLengthConflict reports the contradictory-Content-Length
// sentinel set by applyHeaderFlags.
func (m *Message) HasContentLengthConflict() bool { return m.ErrPos == -2 }

// resolveXferLen implements spec.md §4.6.2 step 2's framing decision:
// CHNK takes priority over CLEN; absent both, a request has a
// zero-length body and a response with Connection: close reads to EOF
// (XFER_LEN, resolved by the caller once it knows the connection mode).
func resolveXferLen(m *Message) {
	switch {
	case m.Flags&FlagChunked != 0:
		m.ChunkLeft = -1 // -1 = "read chunk-size line next"
	case m.Flags&FlagCLen != 0:
		// BodyLen already set by applyHeaderFlags.
	default:
		m.Flags |= FlagXferLen
		if m.IsRequest() {
			m.BodyLen = 0
		}
	}
}
