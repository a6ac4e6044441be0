package connmgr

import "context"

// connThread is the sole owner of one connection's goroutine and socket
// (spec.md §4.3, invariant 4). Nothing outside this package ever retains
// a second reference to it; cancellation always goes through cancel().
type connThread struct {
	addr     PeerAddr
	ctx      context.Context
	cancelFn context.CancelFunc
	done     chan struct{}
}

// cancel requests the thread stop; Cleanup still runs afterward.
func (t *connThread) cancel() {
	t.cancelFn()
}

// wait blocks until Cleanup has returned. A TIME_WAIT removal that
// Cleanup schedules runs on its own goroutine and may still be pending.
func (t *connThread) wait() {
	<-t.done
}

// newConnThread allocates the thread's identity and cancellation context
// without starting any goroutine. Split from startConnThread so the
// caller can install the thread into a ConnectionState (and the table)
// before any negotiation can possibly race ahead and try to Cleanup an
// entry that does not know about its own thread yet.
func (cm *ConnectionManager) newConnThread(addr PeerAddr) *connThread {
	ctx, cancel := context.WithCancel(cm.ctx)
	return &connThread{addr: addr, ctx: ctx, cancelFn: cancel, done: make(chan struct{})}
}

// startConnThread runs the Handler's negotiation+mux body unmasked, then
// unconditionally runs Cleanup via defer — so cancellation or an early
// return from Body can never skip it (spec.md §4.3, §9's "masked
// cancellation"). Must only be called once the caller has already made
// th visible in the ConnectionState the table holds for th.addr.
func (cm *ConnectionManager) startConnThread(th *connThread, connId ConnId, sock Socket, handler Handler, promise *Promise) {
	bearerFactory := func(context.Context) (Bearer, error) {
		return cm.cfg.SocketOps.ToBearer(sock, cm.cfg.ProtocolIdleTimeout, cm.trace)
	}
	action := handler.Negotiate(promise, cm.trace, connId, bearerFactory)

	go func() {
		defer close(th.done)
		defer cm.cleanupThread(th, th.addr, sock)
		if err := action.Body(th.ctx); err != nil && action.ErrorHandler != nil {
			action.ErrorHandler(err)
		}
	}()
}

// cleanupThread implements the Cleanup step of spec.md §4.3. It runs on
// the connection's own goroutine once the handler body has returned for
// any reason.
func (cm *ConnectionManager) cleanupThread(th *connThread, addr PeerAddr, sock Socket) {
	cell, ok := cm.table.Lookup(addr)
	if !ok {
		// NotFound path: the entry is already gone (e.g. a handshake
		// protocol violation or a TIME_WAIT removal already deleted it).
		// Just release the socket.
		_ = cm.cfg.SocketOps.Close(sock)
		return
	}

	current := cell.Get()
	if owner, hasThread := threadOf(current); !hasThread || owner != th {
		// A newer connection has already claimed this table slot (the
		// near-simultaneous-open overwrite of spec.md §5). This thread's own
		// connection lost the race before it ever reached a state that
		// needed table bookkeeping; only our own socket is ours to close.
		_ = cm.cfg.SocketOps.Close(sock)
		return
	}

	switch current.(type) {
	case StateInboundIdle:
		next := StateTerminated{}
		cell.Set(next)
		cm.trace.OnTransition(addr, "cleanup", current, next)
		cm.scheduleTimeWait(addr, cell, sock)
	case StateTerminating:
		cm.scheduleTimeWait(addr, cell, sock)
	case StateTerminated:
		_ = cm.cfg.SocketOps.Close(sock)
	default:
		// Reset path: every other state that still owns this thread.
		next := StateTerminated{}
		cell.Set(next)
		cm.trace.OnTransition(addr, "cleanup-reset", current, next)
		_ = cm.cfg.SocketOps.Close(sock)
		if cm.table.RemoveIfSame(addr, cell) {
			cm.protected.forget(addr)
		}
	}
}

// scheduleTimeWait closes sock and, after timeWaitTimeout (or as soon as
// Shutdown cancels the manager's context), removes the entry if it is
// still Terminating/Terminated — honouring TIME_WAIT (spec.md §4.3)
// without blocking the caller of Cleanup indefinitely, and without ever
// deleting a cell a fresh connection has since replaced.
func (cm *ConnectionManager) scheduleTimeWait(addr PeerAddr, cell *PerPeerState, sock Socket) {
	_ = cm.cfg.SocketOps.Close(sock)
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		select {
		case <-cm.cfg.Clock.After(cm.cfg.TimeWaitTimeout):
		case <-cm.ctx.Done():
			// Shutdown: do not make the caller wait out TIME_WAIT.
		}
		final := cell.Get()
		switch final.(type) {
		case StateTerminating, StateTerminated:
			cell.Set(StateTerminated{})
			if cm.table.RemoveIfSame(addr, cell) {
				cm.protected.forget(addr)
			}
		}
	}()
}

// finishHandlerFailure implements the handler-error branch shared by
// includeInbound (spec.md §4.4 step 3) and requestOutbound (spec.md §4.5):
// HandshakeFailure keeps TIME_WAIT eligibility (Terminating); a protocol
// violation skips it outright (Terminated).
func (cm *ConnectionManager) finishHandlerFailure(addr PeerAddr, cell *PerPeerState, th *connThread, connId ConnId, herr *HandleError) {
	prev := cell.Get()
	var next ConnectionState
	if herr.Kind == HandshakeProtocolViolation {
		next = StateTerminated{Err: herr}
	} else {
		next = StateTerminating{ConnId: connId, Thread: th, Err: herr}
	}
	cell.Set(next)
	cm.trace.OnTransition(addr, "handler-failure", prev, next)
	if herr.Kind == HandshakeProtocolViolation {
		// cleanupThread's StateTerminated case assumes removal already
		// happened (spec.md §4.3); this write can race it, so do the
		// removal here too, guarded by RemoveIfSame.
		if cm.table.RemoveIfSame(addr, cell) {
			cm.protected.forget(addr)
		}
	}
}
