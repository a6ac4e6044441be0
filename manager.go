package connmgr

import (
	"context"
	"sync"
)

// ConnectionManager is the concurrent, in-memory registry described by
// spec.md §1: one PerPeerState cell per peer, a StateTable serializing
// lookup/insert/remove, and the background machinery (TIME_WAIT,
// pruning, the optional watchdog) that keeps the table converging toward
// Terminated/removed without the eight public operations ever blocking on
// each other's I/O.
type ConnectionManager struct {
	cfg       Config
	table     *StateTable
	protected *protectedSet
	trace     TraceSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watchdogStop func()
}

// New constructs a ConnectionManager ready to accept operations. Callers
// must eventually call Shutdown to release background goroutines
// (spec.md §4.10).
func New(cfg Config) *ConnectionManager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	cm := &ConnectionManager{
		cfg:       cfg,
		table:     newStateTable(),
		protected: newProtectedSet(),
		trace:     cfg.buildTrace(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.WatchdogEnabled {
		cm.watchdogStop = cm.startWatchdog()
	}
	return cm
}

// NumberOfConnections reports how many peers currently occupy the table,
// in any state (spec.md §4.9's ninth operation). Use admissionCount via
// runPrune's own snapshot for the subset that counts toward the hard
// limit; this reports every entry, admissible or not.
func (cm *ConnectionManager) NumberOfConnections() int {
	return cm.table.Len()
}

// Protect marks peerAddr as exempt from pruning as long as tag is held
// (SPEC_FULL §4.11).
func (cm *ConnectionManager) Protect(peerAddr PeerAddr, tag string) {
	cm.protected.Protect(peerAddr, tag)
}

// Unprotect releases tag from peerAddr, reporting whether peerAddr remains
// protected under some other tag.
func (cm *ConnectionManager) Unprotect(peerAddr PeerAddr, tag string) bool {
	return cm.protected.Unprotect(peerAddr, tag)
}

// IsProtected reports whether peerAddr currently holds any protect tag.
func (cm *ConnectionManager) IsProtected(peerAddr PeerAddr) bool {
	return cm.protected.IsProtected(peerAddr)
}

// Shutdown implements spec.md §4.10: trace the shutdown, force every
// table entry toward Terminated and cancel whatever thread it owns, then
// wait for every in-flight TIME_WAIT goroutine to finish before
// returning — bounding how long a caller waits for the CM to quiesce.
func (cm *ConnectionManager) Shutdown() {
	cm.trace.OnShutdown()
	if cm.watchdogStop != nil {
		cm.watchdogStop()
	}

	entries := cm.table.Snapshot()
	for addr, cell := range entries {
		prev := cell.Get()
		if _, alreadyDone := prev.(StateTerminated); alreadyDone {
			continue
		}
		next := StateTerminated{}
		cell.Set(next)
		cm.trace.OnTransition(addr, "shutdown", prev, next)
		if th, ok := threadOf(prev); ok {
			th.cancel()
		}
	}

	cm.cancel()
	cm.wg.Wait()
}
