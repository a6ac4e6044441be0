package connmgr

import (
	"fmt"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerAddr is the opaque, hashable identifier the connection manager is
// keyed on. Instantiated concretely as a libp2p peer.ID rather than left
// generic: every transition in this package is written against it.
type PeerAddr = peer.ID

// ConnId pairs the remote and local addresses of one socket. The local
// address is only known once the socket is bound (outbound) or accepted
// (inbound), so ConnId is always constructed after that point.
type ConnId struct {
	Remote ma.Multiaddr
	Local  ma.Multiaddr
}

func (c ConnId) String() string {
	return fmt.Sprintf("%s<-%s", c.Remote, c.Local)
}

// Provenance records which side initiated a connection.
type Provenance int

const (
	// Inbound means the socket was accepted.
	Inbound Provenance = iota
	// Outbound means we dialed the socket.
	Outbound
)

func (p Provenance) String() string {
	switch p {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown-provenance"
	}
}

// DataFlow is the negotiated direction discipline of a connection.
type DataFlow int

const (
	// Unidirectional connections may only be used in their original direction.
	Unidirectional DataFlow = iota
	// Duplex connections may be promoted and used in either direction.
	Duplex
)

func (d DataFlow) String() string {
	switch d {
	case Unidirectional:
		return "unidirectional"
	case Duplex:
		return "duplex"
	default:
		return "unknown-dataflow"
	}
}

// TimeoutExpired tracks whether the reuse-discount timer on a demoted
// outbound-duplex connection has fired yet.
type TimeoutExpired int

const (
	// Ticking means the timer has not yet fired; reuse is still cheap.
	Ticking TimeoutExpired = iota
	// Expired means the timer fired; the connection may still be reused,
	// but no longer for free.
	Expired
)

func (t TimeoutExpired) String() string {
	switch t {
	case Ticking:
		return "ticking"
	case Expired:
		return "expired"
	default:
		return "unknown-timeout-state"
	}
}

// AddressFamily classifies a peer address for local-bind selection.
type AddressFamily int

const (
	AddressUnknown AddressFamily = iota
	AddressIPv4
	AddressIPv6
)

// classifyAddressType inspects the leading multiaddr protocol of addr and
// reports which local bind address (if any) it should use.
func classifyAddressType(addr ma.Multiaddr) AddressFamily {
	if addr == nil {
		return AddressUnknown
	}
	for _, p := range addr.Protocols() {
		switch p.Code {
		case ma.P_IP4:
			return AddressIPv4
		case ma.P_IP6:
			return AddressIPv6
		}
	}
	return AddressUnknown
}

// ConnectionType is the shape PrunePolicy sees for each admissible
// candidate: enough to judge eligibility, nothing about live threads or
// negotiated handles.
type ConnectionType struct {
	Kind       ConnectionTypeKind
	Provenance Provenance
	DataFlow   DataFlow
}

// ConnectionTypeKind tags which ConnectionType case applies.
type ConnectionTypeKind int

const (
	UnnegotiatedConn ConnectionTypeKind = iota
	NegotiatedConn
	InboundIdleConn
	DuplexConn
)

func (k ConnectionTypeKind) String() string {
	switch k {
	case UnnegotiatedConn:
		return "unnegotiated"
	case NegotiatedConn:
		return "negotiated"
	case InboundIdleConn:
		return "inbound-idle"
	case DuplexConn:
		return "duplex"
	default:
		return "unknown-connection-type"
	}
}

// Result is returned by includeInbound and requestOutbound.
type Result struct {
	Connected    bool
	ConnId       ConnId
	DataFlow     DataFlow
	Handle       interface{}
	HandleError  error
	Disconnected bool
}
