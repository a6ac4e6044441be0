package connmgr

import "github.com/prometheus/client_golang/prometheus"

// prometheusTraceSink exposes CM activity as Prometheus collectors
// (SPEC_FULL §4.13). It stays entirely behind the TraceSink interface —
// outside this file, the package only names *prometheus.Registry in
// Config.MetricsRegistry.
type prometheusTraceSink struct {
	transitions *prometheus.CounterVec
	prunes      prometheus.Counter
	shutdowns   prometheus.Counter
	violations  *prometheus.CounterVec
}

// newPrometheusTraceSink registers its collectors against reg and returns
// a TraceSink backed by them. Pass a *prometheus.Registry via
// Config.MetricsRegistry to enable it; the default configuration never
// touches Prometheus at all.
func newPrometheusTraceSink(reg prometheus.Registerer) TraceSink {
	s := &prometheusTraceSink{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "transitions_total",
			Help:      "Count of CM state-cell transitions by operation and destination state.",
		}, []string{"op", "to"}),
		prunes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "pruned_peers_total",
			Help:      "Count of peers selected as prune victims.",
		}),
		shutdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "shutdowns_total",
			Help:      "Count of CM shutdown sequences run.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "assertion_violations_total",
			Help:      "Count of defensive assert-false branches actually taken.",
		}, []string{"detail"}),
	}
	reg.MustRegister(s.transitions, s.prunes, s.shutdowns, s.violations)
	return s
}

func (s *prometheusTraceSink) OnTransition(_ PeerAddr, op string, _ ConnectionState, to ConnectionState) {
	s.transitions.WithLabelValues(op, to.Name()).Inc()
}

func (s *prometheusTraceSink) OnPrune(PeerAddr) {
	s.prunes.Inc()
}

func (s *prometheusTraceSink) OnShutdown() {
	s.shutdowns.Inc()
}

func (s *prometheusTraceSink) OnAssertionViolation(_ PeerAddr, detail string) {
	s.violations.WithLabelValues(detail).Inc()
}
