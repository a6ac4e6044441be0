package connmgr

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	ma "github.com/multiformats/go-multiaddr"
)

// Config wires every external collaborator the CM needs (spec.md §6) plus
// the ambient stack (SPEC_FULL §4.12-4.15). Zero-value fields that have a
// sensible default are filled in by withDefaults; SocketOps, Handler, and
// AddressResolver have none and must be supplied.
type Config struct {
	// SocketOps performs the actual dial/bind/connect/close work
	// (spec.md §6).
	SocketOps SocketOps
	// Handler negotiates a version and runs the application mux on every
	// freshly opened connection (spec.md §6).
	Handler Handler
	// AddressResolver maps a PeerAddr to the multiaddr requestOutbound
	// should dial. It stands in for the address-book lookup a full node
	// would otherwise keep in a peerstore.
	AddressResolver func(PeerAddr) (ma.Multiaddr, error)
	// DataFlowFromVersion classifies a negotiated Version as
	// Unidirectional or Duplex (spec.md §4.4/§4.5).
	DataFlowFromVersion func(Version) DataFlow

	// IPv4Address/IPv6Address are the local bind addresses requestOutbound
	// picks between via classifyAddressType (spec.md §3). Either may be
	// left nil to skip binding for that family.
	IPv4Address ma.Multiaddr
	IPv6Address ma.Multiaddr

	// TimeWaitTimeout is how long a closed connection's table entry lingers
	// before removal (spec.md §4.3).
	TimeWaitTimeout time.Duration
	// ProtocolIdleTimeout bounds how long ToBearer may wait for the first
	// application-level activity before the socket is considered idle.
	ProtocolIdleTimeout time.Duration

	// AcceptedConnectionsHardLimit is the admission ceiling runPrune
	// enforces (spec.md §4.9).
	AcceptedConnectionsHardLimit int
	// PrunePolicy selects victims once the hard limit is exceeded. Defaults
	// to DefaultPrunePolicy.
	PrunePolicy PrunePolicy

	// Clock is the time source thread.go's TIME_WAIT sleep uses. Defaults
	// to the real clock; a clock.NewMock() may be injected instead.
	Clock clock.Clock

	// Trace receives every transition/prune/shutdown/assertion-violation
	// event. A log sink is always installed in addition to whatever is
	// configured here (SPEC_FULL §4.12).
	Trace TraceSink
	// MetricsRegistry, if set, causes a Prometheus TraceSink to be
	// constructed and merged in alongside Trace (SPEC_FULL §4.13).
	MetricsRegistry *prometheus.Registry

	// WatchdogEnabled turns on the memory-pressure-triggered proactive
	// prune loop (SPEC_FULL §4.14).
	WatchdogEnabled bool
	// WatchdogLimitBytes is the soft memory ceiling go-watchdog polls
	// against. Zero uses go-watchdog's own cgroup/system auto-detection.
	WatchdogLimitBytes uint64
	// WatchdogPollInterval is how often go-watchdog checks memory usage.
	WatchdogPollInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.TimeWaitTimeout == 0 {
		cfg.TimeWaitTimeout = 60 * time.Second
	}
	if cfg.ProtocolIdleTimeout == 0 {
		cfg.ProtocolIdleTimeout = 5 * time.Second
	}
	if cfg.PrunePolicy == nil {
		cfg.PrunePolicy = DefaultPrunePolicy
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.DataFlowFromVersion == nil {
		cfg.DataFlowFromVersion = func(Version) DataFlow { return Duplex }
	}
	if cfg.AcceptedConnectionsHardLimit == 0 {
		cfg.AcceptedConnectionsHardLimit = 512
	}
	if cfg.WatchdogPollInterval == 0 {
		cfg.WatchdogPollInterval = 15 * time.Second
	}
	return cfg
}

func (cfg Config) buildTrace() TraceSink {
	sinks := make(multiTraceSink, 0, 3)
	sinks = append(sinks, logTraceSink{})
	if cfg.Trace != nil {
		sinks = append(sinks, cfg.Trace)
	}
	if cfg.MetricsRegistry != nil {
		sinks = append(sinks, newPrometheusTraceSink(cfg.MetricsRegistry))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}
