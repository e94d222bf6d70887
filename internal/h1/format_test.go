package h1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/haproxy-core/mincore/internal/htx"
)

func buildResponse(status int, body string, chunked bool) *Message {
	m := NewMessage(StateRPBefore)
	m.Flags |= FlagResp | FlagVer11
	if chunked {
		m.Flags |= FlagChunked
	}
	m.HTX.AddStartLine(htx.BlockResSL, htx.StartLine{Status: status, Reason: "OK", Version: "HTTP/1.1"})
	m.HTX.AddHeader("content-type", "text/plain")
	m.HTX.AddEOH()
	if body != "" {
		m.HTX.AddData([]byte(body))
	}
	m.HTX.AddEOM()
	return m
}

func TestFormatMessageWritesStatusLineAndHeaders(t *testing.T) {
	m := buildResponse(200, "hi", false)
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeKAL})
	s := out.String()
	require.True(t, strings.HasPrefix(s, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, s, "content-type: text/plain\r\n")
	require.Contains(t, s, "hi")
}

func TestFormatMessageInjectsConnectionCloseHeader(t *testing.T) {
	m := buildResponse(200, "", false)
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeCLO})
	require.Contains(t, out.String(), "Connection: close\r\n")
}

func TestFormatMessageChunkEnvelopesData(t *testing.T) {
	m := buildResponse(200, "hello", true)
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeKAL})
	s := out.String()
	require.Contains(t, s, "5\r\nhello\r\n")
	require.True(t, strings.HasSuffix(s, "0\r\n\r\n"))
}

func TestFormatMessageAppliesCaseAdjustment(t *testing.T) {
	cm := NewCaseMap()
	cm.Add("content-type", "Content-Type")
	m := buildResponse(200, "", false)
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeKAL, CaseMap: cm})
	require.Contains(t, out.String(), "Content-Type: text/plain\r\n")
}

func TestFormatMessageSubstitutesServerIDHeader(t *testing.T) {
	m := buildResponse(200, "", false)
	m.HTX.AddHeader("x-server", "placeholder")
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeKAL, ServerIDHdr: "x-server", ServerID: "srv1"})
	require.Contains(t, out.String(), "x-server: srv1\r\n")
}

func TestFormatMessageDropsInvalidContentLength(t *testing.T) {
	m := buildResponse(200, "", false)
	m.HTX.AddHeader("content-length", "not-a-number")
	out := NewBuffer(nil)
	_, _ = FormatMessage(out, m, FormatOptions{Mode: ModeKAL})
	require.NotContains(t, out.String(), "content-length")
}

func TestFormatMessageStripsCloseTokenFromExistingConnectionHeader(t *testing.T) {
	m := buildResponse(200, "", false)
	m.HTX.AddHeader("connection", "close, foo")
	out := NewBuffer(nil)
	blocksConsumed, _ := FormatMessage(out, m, FormatOptions{Mode: ModeKAL})
	require.Greater(t, blocksConsumed, 0)
	s := out.String()
	require.Contains(t, s, "foo")
	require.NotContains(t, s, "close, foo")
}
