package h1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeadersRequestLineAndHeaders(t *testing.T) {
	m := NewMessage(StateRQBefore)
	raw := []byte("GET /foo HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\n")

	consumed, upgH2C, err := ParseHeaders(raw, m, false)
	require.NoError(t, err)
	require.False(t, upgH2C)
	require.Equal(t, len(raw), consumed)

	sl, ok := m.HTX.StartLine()
	require.True(t, ok)
	require.Equal(t, "GET", sl.Method)
	require.Equal(t, "/foo", sl.Target)
	require.True(t, m.Flags&FlagVer11 != 0)
	require.True(t, m.Flags&FlagCLen != 0)
	require.Equal(t, int64(5), m.BodyLen)
	require.Equal(t, StateData, m.State)
}

func TestParseHeadersNeedsMoreOnIncompleteBlock(t *testing.T) {
	m := NewMessage(StateRQBefore)
	_, _, err := ParseHeaders([]byte("GET / HTTP/1.1\r\nHost: x\r\n"), m, false)
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestParseHeadersDetectsH2CPrefaceOnFrontendFirst(t *testing.T) {
	m := NewMessage(StateRQBefore)
	consumed, upgH2C, err := ParseHeaders([]byte(h2Preface), m, true)
	require.NoError(t, err)
	require.True(t, upgH2C)
	require.Equal(t, len(h2Preface), consumed)
}

func TestParseHeadersRejectsUnsupportedVersion(t *testing.T) {
	m := NewMessage(StateRQBefore)
	_, _, err := ParseHeaders([]byte("GET / HTTP/2.0\r\nHost: x\r\n\r\n"), m, false)
	require.Error(t, err)
	var merr *ErrMalformed
	require.ErrorAs(t, err, &merr)
}

func TestParseHeadersResponseStatusLine(t *testing.T) {
	m := NewMessage(StateRPBefore)
	m.Flags |= FlagResp
	raw := []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
	_, _, err := ParseHeaders(raw, m, false)
	require.NoError(t, err)
	sl, ok := m.HTX.StartLine()
	require.True(t, ok)
	require.Equal(t, 404, sl.Status)
	require.Equal(t, "Not Found", sl.Reason)
}

func TestApplyHeaderFlagsDetectsContentLengthConflict(t *testing.T) {
	m := NewMessage(StateRQBefore)
	raw := []byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\n")
	_, _, err := ParseHeaders(raw, m, false)
	require.NoError(t, err)
	require.True(t, m.HasContentLengthConflict())
}

func TestParseHeadersChunkedSetsChunkLeft(t *testing.T) {
	m := NewMessage(StateRQBefore)
	raw := []byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n")
	_, _, err := ParseHeaders(raw, m, false)
	require.NoError(t, err)
	require.True(t, m.Flags&FlagChunked != 0)
	require.Equal(t, int64(-1), m.ChunkLeft)
}

func TestParseHeadersKeepsOrdinaryHeaderOrder(t *testing.T) {
	m := NewMessage(StateRQBefore)
	raw := []byte("GET / HTTP/1.1\r\nHost: x\r\nAccept: */*\r\n\r\n")
	_, _, err := ParseHeaders(raw, m, false)
	require.NoError(t, err)
	hdrs := m.HTX.Headers()
	require.Len(t, hdrs, 2)
	require.Equal(t, "host", hdrs[0].Name)
	require.Equal(t, "accept", hdrs[1].Name)
}
