package h1

import "github.com/haproxy-core/mincore/internal/tick"

// Timeouts bundles the per-proxy timeout directives of spec.md §6 that
// feed refresh_timeout.
type Timeouts struct {
	Client          tick.Tick // "timeout client" / "timeout server", as a duration-in-ticks
	ClientFin       tick.Tick // "timeout clientfin" / "timeout serverfin"
	HTTPKeepAlive   tick.Tick // "timeout http-keep-alive"
}

// ConnState is the subset of H1 connection state refresh_timeout reads:
// whether either direction is half-closed, whether output is pending,
// and whether the frontend is idle awaiting the next request.
type ConnState struct {
	HalfClosed     bool
	ShutwNow       bool
	OutputPending  bool
	AwaitingNextReq bool
	IsFrontend     bool
}

// RefreshTimeout implements spec.md §4.6.7: recompute the task's expiry
// given now and the connection's current state.
func RefreshTimeout(now tick.Tick, st ConnState, to Timeouts) tick.Tick {
	switch {
	case st.HalfClosed:
		return tick.Add(now, uint32(to.ClientFin))
	case st.OutputPending:
		if st.ShutwNow {
			return tick.Add(now, uint32(to.ClientFin))
		}
		return tick.Add(now, uint32(to.Client))
	case st.AwaitingNextReq && st.IsFrontend:
		return tick.Add(now, uint32(tick.First(to.Client, to.HTTPKeepAlive)))
	default:
		return tick.Eternity
	}
}
