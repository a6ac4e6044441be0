package connmgr

// ConnectionState is the nine-case tagged variant of spec.md §3. It is
// modeled as a closed interface with disjoint payload structs rather than
// one struct with optional fields, so that "handle present iff the state
// permits it" (invariant 5) cannot be violated by construction.
type ConnectionState interface {
	connectionState()
	// Name returns the transition-table name used in logs and traces.
	Name() string
}

// StateReservedOutbound: an outbound dial has been reserved; the socket is
// not connected yet.
type StateReservedOutbound struct{}

func (StateReservedOutbound) connectionState() {}
func (StateReservedOutbound) Name() string     { return "ReservedOutbound" }

// StateUnnegotiated: the socket exists and the handshake is running.
type StateUnnegotiated struct {
	Provenance Provenance
	ConnId     ConnId
	Thread     *connThread
}

func (StateUnnegotiated) connectionState() {}
func (StateUnnegotiated) Name() string     { return "Unnegotiated" }

// StateOutboundUni: negotiated outbound, Unidirectional.
type StateOutboundUni struct {
	ConnId ConnId
	Thread *connThread
	Handle interface{}
}

func (StateOutboundUni) connectionState() {}
func (StateOutboundUni) Name() string     { return "OutboundUni" }

// StateOutboundDup: outbound-only use of a Duplex connection.
type StateOutboundDup struct {
	ConnId ConnId
	Thread *connThread
	Handle interface{}
	Timer  TimeoutExpired
}

func (StateOutboundDup) connectionState() {}
func (StateOutboundDup) Name() string     { return "OutboundDup" }

// StateInboundIdle: negotiated, remote currently silent.
type StateInboundIdle struct {
	ConnId   ConnId
	Thread   *connThread
	Handle   interface{}
	DataFlow DataFlow
}

func (StateInboundIdle) connectionState() {}
func (StateInboundIdle) Name() string     { return "InboundIdle" }

// StateInbound: actively used by remote.
type StateInbound struct {
	ConnId   ConnId
	Thread   *connThread
	Handle   interface{}
	DataFlow DataFlow
}

func (StateInbound) connectionState() {}
func (StateInbound) Name() string     { return "Inbound" }

// StateDuplex: in use in both directions.
type StateDuplex struct {
	ConnId ConnId
	Thread *connThread
	Handle interface{}
}

func (StateDuplex) connectionState() {}
func (StateDuplex) Name() string     { return "Duplex" }

// StateTerminating: closing; the socket may still be in TIME_WAIT.
type StateTerminating struct {
	ConnId ConnId
	Thread *connThread
	Err    error
}

func (StateTerminating) connectionState() {}
func (StateTerminating) Name() string     { return "Terminating" }

// StateTerminated: fully dead; the entry awaits removal.
type StateTerminated struct {
	Err error
}

func (StateTerminated) connectionState() {}
func (StateTerminated) Name() string     { return "Terminated" }

// threadOf returns the connection thread owned by s, if any (invariant 2).
func threadOf(s ConnectionState) (*connThread, bool) {
	switch v := s.(type) {
	case StateUnnegotiated:
		return v.Thread, v.Thread != nil
	case StateOutboundUni:
		return v.Thread, v.Thread != nil
	case StateOutboundDup:
		return v.Thread, v.Thread != nil
	case StateInboundIdle:
		return v.Thread, v.Thread != nil
	case StateInbound:
		return v.Thread, v.Thread != nil
	case StateDuplex:
		return v.Thread, v.Thread != nil
	case StateTerminating:
		return v.Thread, v.Thread != nil
	default:
		return nil, false
	}
}

// handleOf returns the handler-issued handle, if the state carries one
// (invariant 5).
func handleOf(s ConnectionState) (interface{}, bool) {
	switch v := s.(type) {
	case StateOutboundUni:
		return v.Handle, true
	case StateOutboundDup:
		return v.Handle, true
	case StateInboundIdle:
		return v.Handle, true
	case StateInbound:
		return v.Handle, true
	case StateDuplex:
		return v.Handle, true
	default:
		return nil, false
	}
}

// connIdOf returns the connection identifier of s, if it has been assigned
// one yet.
func connIdOf(s ConnectionState) (ConnId, bool) {
	switch v := s.(type) {
	case StateUnnegotiated:
		return v.ConnId, true
	case StateOutboundUni:
		return v.ConnId, true
	case StateOutboundDup:
		return v.ConnId, true
	case StateInboundIdle:
		return v.ConnId, true
	case StateInbound:
		return v.ConnId, true
	case StateDuplex:
		return v.ConnId, true
	case StateTerminating:
		return v.ConnId, true
	default:
		return ConnId{}, false
	}
}

// connectionTypeOf derives the ConnectionType PrunePolicy sees, and reports
// whether the state is admissible at all (spec.md §4.9).
func connectionTypeOf(s ConnectionState) (ConnectionType, bool) {
	switch v := s.(type) {
	case StateUnnegotiated:
		if v.Provenance != Inbound {
			return ConnectionType{}, false
		}
		return ConnectionType{Kind: UnnegotiatedConn, Provenance: v.Provenance}, true
	case StateInboundIdle:
		return ConnectionType{Kind: InboundIdleConn, Provenance: Inbound, DataFlow: v.DataFlow}, true
	case StateInbound:
		return ConnectionType{Kind: NegotiatedConn, Provenance: Inbound, DataFlow: v.DataFlow}, true
	case StateOutboundDup:
		return ConnectionType{Kind: NegotiatedConn, Provenance: Outbound, DataFlow: Duplex}, true
	case StateDuplex:
		return ConnectionType{Kind: DuplexConn, DataFlow: Duplex}, true
	default:
		return ConnectionType{}, false
	}
}
