package h1

import (
	"bytes"
	"strconv"
)

// ParseBody consumes as much of buf as forms complete body content,
// per spec.md §4.6.2 step 2. It returns the number of bytes consumed;
// once the declared body is fully read it appends a trailers-or-EOM
// transition and advances m.State to StateTrailers (chunked only) or
// StateDone.
func ParseBody(buf []byte, m *Message) (consumed int, err error) {
	switch {
	case m.Flags&FlagChunked != 0:
		return parseChunkedBody(buf, m)
	case m.Flags&FlagCLen != 0:
		return parseLengthBody(buf, m)
	case m.Flags&FlagXferLen != 0 && !m.IsRequest():
		// Connection: close, length unknown: read until EOF. Each call
		// appends whatever bytes are available; the body completes only
		// when a caller invokes FinishCloseDelimited on EOF. Conn.Wake
		// does not make that call.
		if len(buf) > 0 {
			m.HTX.AddData(append([]byte(nil), buf...))
			m.BodySent += int64(len(buf))
		}
		return len(buf), nil
	default:
		// Unknown length on a request: zero-length body, per spec.md
		// §4.6.2 step 2.
		m.State = StateDone
		m.HTX.AddEOM()
		return 0, nil
	}
}

func parseLengthBody(buf []byte, m *Message) (int, error) {
	remaining := m.BodyLen - m.BodySent
	if remaining <= 0 {
		m.State = StateDone
		m.HTX.AddEOM()
		return 0, nil
	}
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	if n > 0 {
		m.HTX.AddData(append([]byte(nil), buf[:n]...))
		m.BodySent += n
	}
	if m.BodySent >= m.BodyLen {
		m.State = StateDone
		m.HTX.AddEOM()
	}
	return int(n), nil
}

// FinishCloseDelimited is called once the transport reports EOF on a
// close-delimited response body (spec.md §4.6.2 step 2's third case).
func FinishCloseDelimited(m *Message) {
	if m.State != StateDone {
		m.State = StateDone
		m.HTX.AddEOM()
	}
}

// parseChunkedBody implements spec.md §4.6.2 step 2's CHNK branch:
// chunk-size line, then data, then repeat; a terminal zero-size chunk
// transitions to TRAILERS.
func parseChunkedBody(buf []byte, m *Message) (consumed int, err error) {
	for {
		if m.ChunkLeft < 0 {
			// Need a chunk-size line.
			idx := bytes.Index(buf[consumed:], []byte("\r\n"))
			if idx < 0 {
				return consumed, nil // wait for more
			}
			line := buf[consumed : consumed+idx]
			consumed += idx + 2
			sizeStr := line
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				sizeStr = line[:semi] // chunk-extensions ignored
			}
			size, perr := strconv.ParseInt(string(bytes.TrimSpace(sizeStr)), 16, 64)
			if perr != nil || size < 0 {
				return consumed, &ErrMalformed{Reason: "malformed chunk-size", Offset: consumed}
			}
			if size == 0 {
				m.State = StateTrailers
				return consumed, nil
			}
			m.ChunkLeft = size
		}

		avail := int64(len(buf) - consumed)
		if avail <= 0 {
			return consumed, nil
		}
		take := m.ChunkLeft
		if take > avail {
			take = avail
		}
		if take > 0 {
			m.HTX.AddData(append([]byte(nil), buf[consumed:consumed+int(take)]...))
			consumed += int(take)
			m.ChunkLeft -= take
			m.BodySent += take
		}
		if m.ChunkLeft > 0 {
			return consumed, nil // wait for more of this chunk
		}
		// Chunk fully read; consume its trailing CRLF.
		if len(buf)-consumed < 2 {
			return consumed, nil
		}
		if buf[consumed] != '\r' || buf[consumed+1] != '\n' {
			return consumed, &ErrMalformed{Reason: "chunk missing trailing CRLF", Offset: consumed}
		}
		consumed += 2
		m.ChunkLeft = -1 // next iteration reads the next chunk-size line
	}
}

// ParseTrailers consumes trailer header lines up to the terminating
// CRLF-CRLF (spec.md §4.6.2's "optional trailers, then CRLF"), emitting
// TLR blocks followed by EOT and EOM. Trailers on a non-chunked message
// never reach this path (ParseBody only sets StateTrailers from the
// chunked branch); see DESIGN.md for the non-chunked-trailers decision.
func ParseTrailers(buf []byte, m *Message) (consumed int, err error) {
	end := bytes.Index(buf, []byte("\r\n\r\n"))
	if end < 0 {
		if len(buf) == 2 && string(buf) == "\r\n" {
			m.HTX.AddEOT()
			m.HTX.AddEOM()
			m.State = StateDone
			return 2, nil
		}
		return 0, nil
	}
	block := buf[:end]
	for _, line := range bytesSplitCRLF(block) {
		if len(line) == 0 {
			continue
		}
		name, value, ok := splitHeaderLine(string(line))
		if !ok {
			return 0, &ErrMalformed{Reason: "trailer line missing ':'", Offset: 0}
		}
		m.HTX.AddTrailer(name, value)
	}
	m.HTX.AddEOT()
	m.HTX.AddEOM()
	m.State = StateDone
	return end + 4, nil
}

func bytesSplitCRLF(b []byte) [][]byte {
	return bytes.Split(b, []byte("\r\n"))
}
