package config

import (
	"bufio"
	"os"

	"github.com/haproxy-core/mincore/internal/h1"
	"github.com/haproxy-core/mincore/internal/sched"
	"github.com/haproxy-core/mincore/internal/tick"
)

// SchedulerConfig translates the global tunables into internal/sched's
// own Config shape.
func (g Global) SchedulerConfig() sched.Config {
	return sched.Config{
		NThreads:      g.NbThread,
		RunqueueDepth: g.RunqueueDepth,
		LowLatency:    g.LowLatency,
	}
}

// Timeouts translates a proxy's millisecond timeout directives into
// internal/h1's tick-based Timeouts.
func (p ProxyTimeouts) Timeouts() h1.Timeouts {
	return h1.Timeouts{
		Client:        tick.Tick(p.Client),
		ClientFin:     tick.Tick(p.ClientFin),
		HTTPKeepAlive: tick.Tick(p.HTTPKeepAlive),
	}
}

// H1Options translates a proxy's option directives into internal/h1's
// Options (the ProxyStopped bit is set at runtime by the proxy's own
// lifecycle, not sourced from directives).
func (p Proxy) H1Options() h1.Options {
	return h1.Options{
		FrontendHTTPClose:  p.IsFrontend && p.Options.HTTPClose,
		BackendServerClose: !p.IsFrontend && p.Options.ServerClose,
		BackendHTTPClose:   !p.IsFrontend && p.Options.HTTPClose,
	}
}

// LoadCaseAdjustFile builds a CaseMap from the global h1-case-adjust-file
// directive, if set. A nil, nil return means no file was configured.
func (g Global) LoadCaseAdjustFile() (*h1.CaseMap, error) {
	if g.H1CaseAdjustFile == "" {
		return nil, nil
	}
	f, err := os.Open(g.H1CaseAdjustFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cm := h1.NewCaseMap()
	if err := cm.LoadFile(bufio.NewScanner(f)); err != nil {
		return nil, err
	}
	return cm, nil
}
