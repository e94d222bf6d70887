package h1

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haproxy-core/mincore/internal/htx"
)

// FormatOptions controls per-side header-case adjustment (spec.md
// §4.6.5's "distinct flags for request-side bug-compat and
// response-side bug-compat") and the resolved connection mode.
type FormatOptions struct {
	CaseMap       *CaseMap // nil disables case adjustment
	ServerIDHdr   string   // header name replaced with the backend server id, if set
	ServerID      string
	Mode          Mode
	HaveOConn     bool // whether the Connection header was already injected this message
}

// FormatMessage consumes m's HTX blocks in order — start-line, headers
// (pseudo-headers skipped), EOH, data/trailers, EOM — per spec.md
// §4.6.4, and appends the wire bytes to out. It returns the number of
// HTX blocks consumed and whether a fast path was available (this
// implementation always takes the "write to a temporary view, copy at
// the end" path: true zero-copy buffer-swap has no portable
// representation over a Go []byte, so FastPath is reported purely
// informationally for callers that want to track the metric spec.md
// §4.6.4 describes).
func FormatMessage(out *Buffer, m *Message, opt FormatOptions) (blocksConsumed int, fastPath bool) {
	chunked := m.Flags&FlagChunked != 0 && opt.Mode != ModeTUN
	fastPath = out.Len() == 0 && isSingleDataMessage(m)

	injectedConn := opt.HaveOConn
	for _, b := range m.HTX.Blocks() {
		blocksConsumed++
		switch b.Type {
		case htx.BlockReqSL:
			out.Append([]byte(fmt.Sprintf("%s %s %s\r\n", b.Line.Method, b.Line.Target, b.Line.Version)))
		case htx.BlockResSL:
			reason := b.Line.Reason
			if reason == "" {
				reason = "OK"
			}
			out.Append([]byte(fmt.Sprintf("%s %d %s\r\n", b.Line.Version, b.Line.Status, reason)))
		case htx.BlockHdr:
			name := b.Header.Name
			if strings.HasPrefix(name, ":") {
				continue // pseudo-headers skipped
			}
			if opt.ServerIDHdr != "" && strings.EqualFold(name, opt.ServerIDHdr) {
				out.Append([]byte(fmt.Sprintf("%s: %s\r\n", name, opt.ServerID)))
				continue
			}
			if strings.EqualFold(name, "content-length") {
				if _, err := strconv.ParseInt(b.Header.Value, 10, 64); err != nil {
					continue // invalid Content-Length dropped
				}
			}
			if strings.EqualFold(name, "connection") {
				stripped := stripConnectionTokens(b.Header.Value)
				if stripped == "" {
					continue // empty Connection after token stripping dropped
				}
				if !injectedConn {
					if value, need := NeedsConnectionHeader(m, opt.Mode); need {
						stripped = value + ", " + stripped
					}
					writeHeader(out, name, stripped, opt.CaseMap)
					injectedConn = true
					continue
				}
				continue
			}
			writeHeader(out, name, b.Header.Value, opt.CaseMap)
		case htx.BlockEOH:
			if !injectedConn {
				if value, need := NeedsConnectionHeader(m, opt.Mode); need {
					writeHeader(out, "Connection", value, opt.CaseMap)
					injectedConn = true
				}
			}
			out.Append([]byte("\r\n"))
		case htx.BlockData:
			if chunked {
				out.Append([]byte(fmt.Sprintf("%x\r\n", len(b.Data))))
				out.Append(b.Data)
				out.Append([]byte("\r\n"))
			} else {
				out.Append(b.Data)
			}
		case htx.BlockTlr:
			writeHeader(out, b.Header.Name, b.Header.Value, opt.CaseMap)
		case htx.BlockEOT:
			out.Append([]byte("\r\n"))
		case htx.BlockEOM:
			if chunked {
				out.Append([]byte("0\r\n\r\n"))
			}
		}
	}
	return blocksConsumed, fastPath
}

func writeHeader(out *Buffer, name, value string, cm *CaseMap) {
	if cm != nil {
		name = cm.Lookup(name)
	}
	out.Append([]byte(fmt.Sprintf("%s: %s\r\n", name, value)))
}

func stripConnectionTokens(value string) string {
	var kept []string
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)
		if lower == "close" || lower == "keep-alive" {
			continue // these are re-synthesized by NeedsConnectionHeader
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, ", ")
}

func isSingleDataMessage(m *Message) bool {
	dataBlocks := 0
	for _, b := range m.HTX.Blocks() {
		if b.Type == htx.BlockData {
			dataBlocks++
		}
	}
	return dataBlocks == 1
}
