package h1

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/haproxy-core/mincore/internal/htx"
)

func reqMsg(flags MsgFlags) *Message {
	m := NewMessage(StateRQBefore)
	m.Flags = flags
	return m
}

func TestResolveModeHTTP10WithoutKeepAliveIsClose(t *testing.T) {
	req := reqMsg(0)
	got := ResolveMode(req, nil, true, Options{})
	require.Equal(t, ModeCLO, got)
}

func TestResolveModeHTTP11DefaultsKeepAlive(t *testing.T) {
	req := reqMsg(FlagVer11)
	got := ResolveMode(req, nil, true, Options{})
	require.Equal(t, ModeKAL, got)
}

func TestResolveModeExplicitConnectionCloseWins(t *testing.T) {
	req := reqMsg(FlagVer11 | FlagConnCLO)
	got := ResolveMode(req, nil, true, Options{})
	require.Equal(t, ModeCLO, got)
}

func TestResolveModeConnectWithSuccessfulResponseTunnels(t *testing.T) {
	req := reqMsg(FlagVer11 | FlagMethConnect)
	resp := NewMessage(StateRPBefore)
	resp.Flags |= FlagResp
	resp.HTX.AddStartLine(htx.BlockResSL, htx.StartLine{Status: 200, Version: "HTTP/1.1"})
	got := ResolveMode(req, resp, false, Options{})
	require.Equal(t, ModeTUN, got)
}

func TestResolveMode101SwitchingProtocolsTunnels(t *testing.T) {
	req := reqMsg(FlagVer11 | FlagConnUPG)
	resp := NewMessage(StateRPBefore)
	resp.Flags |= FlagResp
	resp.HTX.AddStartLine(htx.BlockResSL, htx.StartLine{Status: 101, Version: "HTTP/1.1"})
	got := ResolveMode(req, resp, true, Options{})
	require.Equal(t, ModeTUN, got)
}

func TestResolveModeFrontendHTTPCloseOption(t *testing.T) {
	req := reqMsg(FlagVer11)
	got := ResolveMode(req, nil, true, Options{FrontendHTTPClose: true})
	require.Equal(t, ModeCLO, got)
}

func TestResolveModeBackendServerCloseOption(t *testing.T) {
	req := reqMsg(FlagVer11)
	got := ResolveMode(req, nil, false, Options{BackendServerClose: true})
	require.Equal(t, ModeCLO, got)
}

func TestResolveModeProxyStopped(t *testing.T) {
	req := reqMsg(FlagVer11)
	got := ResolveMode(req, nil, true, Options{ProxyStopped: true})
	require.Equal(t, ModeCLO, got)
}

func TestNeedsConnectionHeaderSkipsUpgrade(t *testing.T) {
	m := reqMsg(FlagVer11 | FlagConnUPG)
	_, need := NeedsConnectionHeader(m, ModeCLO)
	require.False(t, need)
}

func TestNeedsConnectionHeaderInjectsCloseOnHTTP11(t *testing.T) {
	m := reqMsg(FlagVer11)
	value, need := NeedsConnectionHeader(m, ModeCLO)
	require.True(t, need)
	require.Equal(t, "close", value)
}

func TestNeedsConnectionHeaderInjectsKeepAliveOnHTTP10(t *testing.T) {
	m := reqMsg(0)
	value, need := NeedsConnectionHeader(m, ModeKAL)
	require.True(t, need)
	require.Equal(t, "keep-alive", value)
}

func TestNeedsConnectionHeaderNoneWhenModeMatchesDefault(t *testing.T) {
	m := reqMsg(FlagVer11)
	_, need := NeedsConnectionHeader(m, ModeKAL)
	require.False(t, need)
}
