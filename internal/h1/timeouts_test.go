package h1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haproxy-core/mincore/internal/tick"
)

func TestRefreshTimeoutHalfClosedUsesClientFin(t *testing.T) {
	to := Timeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	got := RefreshTimeout(0, ConnState{HalfClosed: true}, to)
	require.Equal(t, tick.Add(0, 1000), got)
}

func TestRefreshTimeoutOutputPendingUsesClientTimeout(t *testing.T) {
	to := Timeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	got := RefreshTimeout(0, ConnState{OutputPending: true}, to)
	require.Equal(t, tick.Add(0, 30000), got)
}

func TestRefreshTimeoutOutputPendingShutwNowUsesClientFin(t *testing.T) {
	to := Timeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	got := RefreshTimeout(0, ConnState{OutputPending: true, ShutwNow: true}, to)
	require.Equal(t, tick.Add(0, 1000), got)
}

func TestRefreshTimeoutAwaitingNextReqUsesEarlierOfClientAndKeepAlive(t *testing.T) {
	to := Timeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	got := RefreshTimeout(0, ConnState{AwaitingNextReq: true, IsFrontend: true}, to)
	require.Equal(t, tick.Add(0, 5000), got)
}

func TestRefreshTimeoutDefaultsToEternity(t *testing.T) {
	to := Timeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	got := RefreshTimeout(0, ConnState{}, to)
	require.Equal(t, tick.Eternity, got)
}
