package connmgr

// PromotedToWarmRemote implements spec.md §4.8: the inbound protocol
// governor marking a peer as actively used, the counterpart to
// requestOutbound's own promotion to Duplex.
func (cm *ConnectionManager) PromotedToWarmRemote(peerAddr PeerAddr) error {
	cell, ok := cm.table.Lookup(peerAddr)
	if !ok {
		return &ErrUnsupportedState{Peer: peerAddr}
	}

	prev := cell.Get()
	switch s := prev.(type) {
	case StateInboundIdle:
		next := StateInbound{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, DataFlow: s.DataFlow}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "promotedToWarmRemote", prev, next)
		return nil

	case StateOutboundDup:
		if s.Timer != Ticking {
			return &ErrForbiddenOperation{Peer: peerAddr, InState: prev}
		}
		next := StateDuplex{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "promotedToWarmRemote", prev, next)
		return nil

	case StateInbound, StateDuplex:
		// Already warm: idempotent no-op.
		return nil

	default:
		return &ErrForbiddenOperation{Peer: peerAddr, InState: prev}
	}
}

// DemotedToColdRemote implements spec.md §4.8, the inverse of
// promotedToWarmRemote. It is the transition unregisterInbound expects
// to have already happened before it is called on an Inbound or Duplex
// peer (see the assertion-violation paths in ops_inbound.go).
func (cm *ConnectionManager) DemotedToColdRemote(peerAddr PeerAddr) error {
	cell, ok := cm.table.Lookup(peerAddr)
	if !ok {
		return &ErrUnsupportedState{Peer: peerAddr}
	}

	prev := cell.Get()
	switch s := prev.(type) {
	case StateInbound:
		next := StateInboundIdle{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, DataFlow: s.DataFlow}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "demotedToColdRemote", prev, next)
		return nil

	case StateDuplex:
		next := StateOutboundDup{ConnId: s.ConnId, Thread: s.Thread, Handle: s.Handle, Timer: Ticking}
		cell.Set(next)
		cm.trace.OnTransition(peerAddr, "demotedToColdRemote", prev, next)
		return nil

	case StateInboundIdle, StateOutboundDup:
		// Already cold: idempotent no-op.
		return nil

	default:
		return &ErrForbiddenOperation{Peer: peerAddr, InState: prev}
	}
}
