package h1

// Mode is the resolved connection-mode tri-state of spec.md §4.6.3.
type Mode int

const (
	ModeKAL Mode = iota
	ModeTUN
	ModeCLO
)

// Options are the per-proxy directives relevant to mode resolution
// (spec.md §6's "option http-server-close" / "option httpclose" and
// "proxy in STOPPED state").
type Options struct {
	FrontendHTTPClose bool // frontend: option httpclose
	BackendServerClose bool // backend: option server-close
	BackendHTTPClose   bool // backend: option httpclose
	ProxyStopped       bool
}

// ResolveMode implements spec.md §4.6.3's connection-mode decision,
// evaluated once the response message is available (req and the
// backend-side resolution both need the response status to detect
// CONNECT-2xx and 101 Switching Protocols).
func ResolveMode(req, resp *Message, isFrontend bool, opt Options) Mode {
	if req.Flags&FlagMethConnect != 0 && resp != nil {
		if sl, ok := resp.HTX.StartLine(); ok && sl.Status/100 == 2 {
			return ModeTUN
		}
	}
	if resp != nil {
		if sl, ok := resp.HTX.StartLine(); ok && sl.Status == 101 {
			return ModeTUN
		}
	}

	if req.Flags&FlagVer11 == 0 && req.Flags&FlagConnKAL == 0 {
		return ModeCLO
	}
	if req.Flags&FlagConnCLO != 0 {
		return ModeCLO
	}
	if isFrontend && opt.FrontendHTTPClose {
		return ModeCLO
	}
	if !isFrontend && (opt.BackendServerClose || opt.BackendHTTPClose) {
		return ModeCLO
	}
	if opt.ProxyStopped {
		return ModeCLO
	}
	return ModeKAL
}

// DefaultKeepsAlive reports the per-version implicit default (spec.md
// §4.6.3: "HTTP/1.0 default close, HTTP/1.1 default keep-alive").
func DefaultKeepsAlive(m *Message) bool {
	return m.Flags&FlagVer11 != 0
}

// NeedsConnectionHeader reports whether a synthetic Connection: header
// must be injected when formatting m's output, per spec.md §4.6.3: only
// when the resolved mode differs from the message version's implicit
// default, and only once (guarded by HAVE_O_CONN upstream — callers
// track that via FormatOptions.HaveOConn).
func NeedsConnectionHeader(m *Message, mode Mode) (value string, need bool) {
	if m.Flags&FlagConnUPG != 0 {
		return "", false // Upgrade path must never be overridden
	}
	wantsClose := mode == ModeCLO
	defaultsKAL := DefaultKeepsAlive(m)
	if wantsClose == !defaultsKAL {
		return "", false
	}
	if wantsClose {
		return "close", true
	}
	return "keep-alive", true
}
