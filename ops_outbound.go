package connmgr

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
)

// RequestOutbound implements spec.md §4.5: the two-phase outbound dial,
// including reuse of an existing Duplex inbound connection and the
// near-simultaneous-open race with includeInbound.
func (cm *ConnectionManager) RequestOutbound(ctx context.Context, peerAddr PeerAddr) (Result, error) {
	for {
		cell, existed := cm.table.Lookup(peerAddr)
		if !existed {
			fresh := newPerPeerState(StateReservedOutbound{})
			installed, won := cm.table.InsertIfAbsent(peerAddr, fresh)
			if won {
				return cm.dialOutbound(ctx, peerAddr, installed)
			}
			cell = installed
		}

		state := cell.Get()
		switch s := state.(type) {
		case StateTerminated:
			next := StateReservedOutbound{}
			cell.Set(next)
			cm.trace.OnTransition(peerAddr, "requestOutbound", state, next)
			return cm.dialOutbound(ctx, peerAddr, cell)

		case StateTerminating:
			if _, err := cell.WaitUntil(ctx, func(cs ConnectionState) bool {
				_, still := cs.(StateTerminating)
				return !still
			}); err != nil {
				return Result{}, err
			}
			continue // retry Phase A against the now-departed state

		case StateUnnegotiated:
			if s.Provenance == Inbound {
				return cm.awaitReuse(ctx, peerAddr, cell)
			}
			return Result{}, &ErrConnectionExists{Provenance: Outbound, Peer: peerAddr}

		case StateInboundIdle:
			if s.DataFlow != Duplex {
				return Result{}, &ErrForbiddenConnection{ConnId: s.ConnId}
			}
			next := StateOutboundDup{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, Timer: Ticking}
			cell.Set(next)
			cm.trace.OnTransition(peerAddr, "requestOutbound", state, next)
			return Result{Connected: true, ConnId: s.ConnId, DataFlow: Duplex, Handle: s.Handle}, nil

		case StateInbound:
			if s.DataFlow != Duplex {
				return Result{}, &ErrForbiddenConnection{ConnId: s.ConnId}
			}
			next := StateDuplex{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle}
			cell.Set(next)
			cm.trace.OnTransition(peerAddr, "requestOutbound", state, next)
			return Result{Connected: true, ConnId: s.ConnId, DataFlow: Duplex, Handle: s.Handle}, nil

		default:
			// ReservedOutbound, Unnegotiated(Outbound), OutboundUni/Dup, Duplex.
			return Result{}, &ErrConnectionExists{Provenance: Outbound, Peer: peerAddr}
		}
	}
}

// awaitReuse implements the "There" branch of Phase B: block until the
// racing inbound negotiation settles, then reuse or reject per its
// outcome.
func (cm *ConnectionManager) awaitReuse(ctx context.Context, peerAddr PeerAddr, cell *PerPeerState) (Result, error) {
	state, err := cell.WaitUntil(ctx, func(cs ConnectionState) bool {
		_, unneg := cs.(StateUnnegotiated)
		return !unneg
	})
	if err != nil {
		return Result{}, err
	}

	switch s := state.(type) {
	case StateInboundIdle:
		if s.DataFlow != Duplex {
			return Result{}, &ErrForbiddenConnection{ConnId: s.ConnId}
		}
		next := StateOutboundDup{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, Timer: Ticking}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "requestOutbound", state, next)
		return Result{Connected: true, ConnId: s.ConnId, DataFlow: Duplex, Handle: s.Handle}, nil

	case StateInbound:
		if s.DataFlow != Duplex {
			return Result{}, &ErrForbiddenConnection{ConnId: s.ConnId}
		}
		next := StateDuplex{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "requestOutbound", state, next)
		return Result{Connected: true, ConnId: s.ConnId, DataFlow: Duplex, Handle: s.Handle}, nil

	case StateTerminating, StateTerminated:
		return Result{Disconnected: true}, nil

	default:
		return Result{}, &ErrImpossibleState{Peer: peerAddr, InState: state}
	}
}

// dialOutbound implements the "Nowhere" branch of Phase B: open, bind,
// connect, then negotiate. Every failure from socket creation onward
// closes the socket and resets the cell (the bracketOnError discipline
// spec.md §4.5 mandates).
func (cm *ConnectionManager) dialOutbound(ctx context.Context, peerAddr PeerAddr, cell *PerPeerState) (Result, error) {
	remoteAddr, err := cm.cfg.AddressResolver(peerAddr)
	if err != nil {
		cell.Set(StateTerminated{Err: err})
		if cm.table.RemoveIfSame(peerAddr, cell) {
			cm.protected.forget(peerAddr)
		}
		return Result{}, err
	}

	sock, err := cm.cfg.SocketOps.OpenToConnect(ctx, remoteAddr)
	if err != nil {
		cell.Set(StateTerminated{Err: err})
		if cm.table.RemoveIfSame(peerAddr, cell) {
			cm.protected.forget(peerAddr)
		}
		return Result{}, err
	}

	if localAddr := cm.localBindAddr(remoteAddr); localAddr != nil {
		if err := cm.cfg.SocketOps.Bind(sock, localAddr); err != nil {
			_ = cm.cfg.SocketOps.Close(sock)
			cell.Set(StateTerminated{Err: err})
			if cm.table.RemoveIfSame(peerAddr, cell) {
				cm.protected.forget(peerAddr)
			}
			return Result{}, err
		}
	}

	if err := cm.cfg.SocketOps.Connect(ctx, sock, remoteAddr); err != nil {
		_ = cm.cfg.SocketOps.Close(sock)
		cell.Set(StateTerminated{Err: err})
		if cm.table.RemoveIfSame(peerAddr, cell) {
			cm.protected.forget(peerAddr)
		}
		return Result{}, err
	}

	localResolved, _ := cm.cfg.SocketOps.GetLocalAddr(sock)
	connId := ConnId{Remote: remoteAddr, Local: localResolved}
	th := cm.newConnThread(peerAddr)

	current, stillOurs := cm.table.Lookup(peerAddr)
	if !stillOurs || current != cell {
		// Near-simultaneous open (spec.md §5): an inbound accept overwrote
		// our reservation while we were dialing. Our own socket lost the
		// race; fall back to awaiting whichever connection won.
		_ = cm.cfg.SocketOps.Close(sock)
		if stillOurs {
			return cm.awaitReuse(ctx, peerAddr, current)
		}
		return Result{Disconnected: true}, nil
	}

	prev := cell.Get()
	unnegotiated := StateUnnegotiated{Provenance: Outbound, ConnId: connId, Thread: th}
	cell.Set(unnegotiated)
	cm.trace.OnTransition(peerAddr, "requestOutbound", prev, unnegotiated)

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
	var next ConnectionState
	if df == Duplex {
		next = StateOutboundDup{ConnId: connId, Thread: th, Handle: outcome.Handle, Timer: Ticking}
	} else {
		next = StateOutboundUni{ConnId: connId, Thread: th, Handle: outcome.Handle}
	}
	cell.Set(next)
	cm.trace.OnTransition(peerAddr, "requestOutbound", unnegotiated, next)
	return Result{Connected: true, ConnId: connId, DataFlow: df, Handle: outcome.Handle}, nil
}

// localBindAddr picks the configured IPv4/IPv6 local bind address for
// remoteAddr's family, if one is configured (spec.md §3's
// addressTypeClassifier, §4.5).
func (cm *ConnectionManager) localBindAddr(remoteAddr ma.Multiaddr) ma.Multiaddr {
	switch classifyAddressType(remoteAddr) {
	case AddressIPv4:
		return cm.cfg.IPv4Address
	case AddressIPv6:
		return cm.cfg.IPv6Address
	default:
		return nil
	}
}

// UnregisterOutbound implements spec.md §4.7, including the prune path
// triggered when Duplex demotes to Inbound.
func (cm *ConnectionManager) UnregisterOutbound(peerAddr PeerAddr) error {
	cell, ok := cm.table.Lookup(peerAddr)
	if !ok {
		return nil // no-op success
	}

	prev := cell.Get()
	switch s := prev.(type) {
	case StateOutboundUni:
		next := StateTerminating{ConnId: s.ConnId, Thread: s.Thread}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterOutbound", prev, next)
		s.Thread.cancel()
		return nil

	case StateOutboundDup:
		if s.Timer == Expired {
			next := StateTerminating{ConnId: s.ConnId, Thread: s.Thread}
			cell.Set(next)
			cm.trace.OnTransition(peerAddr, "unregisterOutbound", prev, next)
			s.Thread.cancel()
			return nil
		}
		next := StateInboundIdle{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, DataFlow: Duplex}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterOutbound", prev, next)
		return nil

	case StateInboundIdle:
		// Already cold; no-op success.
		return nil

	case StateDuplex:
		next := StateInbound{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, DataFlow: Duplex}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "unregisterOutbound", prev, next)
		cm.runPrune()
		return nil

	case StateTerminating, StateTerminated:
		return nil

	default:
		// Inbound, Reserved, Unnegotiated, OutboundUni already handled above
		// where legal; everything else is a protocol error.
		return &ErrForbiddenOperation{Peer: peerAddr, InState: prev}
	}
}
