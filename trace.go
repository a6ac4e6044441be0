package connmgr

// TraceSink is the tracing-hook interface the CM calls into (spec.md §6
// configuration: "trace sinks"); tracing/metrics backends are themselves
// external collaborators (spec.md §1) — the CM only ever calls this
// interface.
type TraceSink interface {
	// OnTransition fires on every state-cell write the eight public
	// operations perform.
	OnTransition(peer PeerAddr, op string, from, to ConnectionState)
	// OnPrune fires once per peer selected as a prune victim.
	OnPrune(peer PeerAddr)
	// OnShutdown fires once, at the start of the shutdown routine
	// (spec.md §4.10 step 1).
	OnShutdown()
	// OnAssertionViolation fires when a defensive "should never happen"
	// branch (spec.md §9) is actually taken.
	OnAssertionViolation(peer PeerAddr, detail string)
}

// noopTraceSink discards everything. buildTrace does not use it: when
// Config.Trace is nil the log sink alone is installed.
type noopTraceSink struct{}

func (noopTraceSink) OnTransition(PeerAddr, string, ConnectionState, ConnectionState) {}
func (noopTraceSink) OnPrune(PeerAddr)                                                {}
func (noopTraceSink) OnShutdown()                                                     {}
func (noopTraceSink) OnAssertionViolation(PeerAddr, string)                            {}

// multiTraceSink fans out to every sink it wraps, in order.
type multiTraceSink []TraceSink

func (m multiTraceSink) OnTransition(peer PeerAddr, op string, from, to ConnectionState) {
	for _, s := range m {
		s.OnTransition(peer, op, from, to)
	}
}

func (m multiTraceSink) OnPrune(peer PeerAddr) {
	for _, s := range m {
		s.OnPrune(peer)
	}
}

func (m multiTraceSink) OnShutdown() {
	for _, s := range m {
		s.OnShutdown()
	}
}

func (m multiTraceSink) OnAssertionViolation(peer PeerAddr, detail string) {
	for _, s := range m {
		s.OnAssertionViolation(peer, detail)
	}
}
