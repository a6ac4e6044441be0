package connmgr

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
)

// IncludeInbound implements spec.md §4.4: register a freshly accepted
// socket, run the Handler, and return Connected/Disconnected once
// negotiation settles.
//
// remoteAddr is the multiaddr the socket was accepted from; peerAddr is
// the opaque identity the caller already associates with it (spec.md's
// PeerAddr is parametric — the inbound governor is responsible for
// resolving identity before calling this, exactly as it resolves which
// protocol version to run).
func (cm *ConnectionManager) IncludeInbound(ctx context.Context, sock Socket, peerAddr PeerAddr, remoteAddr ma.Multiaddr) (Result, error) {
	localAddr, _ := cm.cfg.SocketOps.GetLocalAddr(sock)
	connId := ConnId{Remote: remoteAddr, Local: localAddr}

	th := cm.newConnThread(peerAddr)
	initial := StateUnnegotiated{Provenance: Inbound, ConnId: connId, Thread: th}
	cell := newPerPeerState(initial)
	// Overwrite unconditionally (spec.md §4.4 step 1): a stale
	// ReservedOutbound left by a near-simultaneous outbound dial must never
	// remain referenced from the table.
	cm.table.Insert(peerAddr, cell)
	cm.trace.OnTransition(peerAddr, "includeInbound", StateReservedOutbound{}, initial)

	promise := newPromise()
	cm.startConnThread(th, connId, sock, cm.cfg.Handler, promise)

	outcome, err := promise.wait(ctx)
	if err != nil {
		return Result{Disconnected: true}, err
	}
	if outcome.Err != nil {
		cm.finishHandlerFailure(peerAddr, cell, th, connId, outcome.Err)
		return Result{Disconnected: true, HandleError: outcome.Err}, nil
	}

	df := cm.cfg.DataFlowFromVersion(outcome.Ver)
	prev := cell.Get()
	switch prev.(type) {
	case StateUnnegotiated, StateTerminating, StateTerminated:
		// the only legal predecessors (spec.md §4.4 step 4)
	default:
		return Result{}, &ErrImpossibleState{Peer: peerAddr, InState: prev}
	}
	next := StateInboundIdle{ConnId: connId, Thread: th, Handle: outcome.Handle, DataFlow: df}
	cell.Set(next)
	cm.trace.OnTransition(peerAddr, "includeInbound", prev, next)

	return Result{Connected: true, ConnId: connId, DataFlow: df, Handle: outcome.Handle}, nil
}

// UnregisterInbound implements spec.md §4.6: the inbound protocol governor
// demoting a peer back to idle.
//
// Inbound and Duplex are not legal starting states (spec.md says these
// "require demotedToCold first, or are protocol errors") — but per spec.md
// §9's guidance to "preserve the transitions... but log them as
// violations," this still performs the defensive demotion the original
// state machine applies in those cases, rather than leaving the peer stuck,
// while reporting UnsupportedState so the caller knows it asked for
// something out of protocol.
func (cm *ConnectionManager) UnregisterInbound(peerAddr PeerAddr) error {
	cell, ok := cm.table.Lookup(peerAddr)
	if !ok {
		return &ErrUnsupportedState{Peer: peerAddr}
	}

	prev := cell.Get()
	switch s := prev.(type) {
	case StateOutboundDup:
		if s.Timer == Ticking {
			next := StateOutboundDup{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, Timer: Expired}
			cell.Set(next)
			cm.trace.OnTransition(peerAddr, "unregisterInbound", prev, next)
		} else {
			// Already Expired: no-op (KeepTr), logged as a defensive branch.
			cm.trace.OnAssertionViolation(peerAddr, "unregisterInbound called while OutboundDup(Expired)")
		}
		return nil

	case StateInboundIdle:
		next := StateTerminating{ConnId: s.ConnId, Thread: s.Thread}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterInbound", prev, next)
		s.Thread.cancel()
		return nil

	case StateTerminating:
		// No-op: already committed to terminating (CommitTr).
		return nil

	case StateInbound:
		next := StateTerminating{ConnId: s.ConnId, Thread: s.Thread}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterInbound", prev, next)
		cm.trace.OnAssertionViolation(peerAddr, "unregisterInbound called while Inbound; expected demotedToColdRemote first")
		s.Thread.cancel()
		return &ErrUnsupportedState{Peer: peerAddr, InState: prev}

	case StateDuplex:
		next := StateOutboundDup{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, Timer: Ticking}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterInbound", prev, next)
		cm.trace.OnAssertionViolation(peerAddr, "unregisterInbound called while Duplex; expected demotedToColdRemote first")
		return &ErrUnsupportedState{Peer: peerAddr, InState: prev}

	default:
		cm.trace.OnAssertionViolation(peerAddr, "unregisterInbound: unsupported state "+prev.Name())
		return &ErrUnsupportedState{Peer: peerAddr, InState: prev}
	}
}
