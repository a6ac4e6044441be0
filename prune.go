package connmgr

import "sort"

// PrunePolicy selects which k peers, out of candidates, should be evicted
// (spec.md §6). It is pure: no I/O, no locking, no side effects — the CM
// does all the cancelling.
type PrunePolicy interface {
	SelectVictims(candidates map[PeerAddr]ConnectionType, k int) map[PeerAddr]struct{}
}

// PrunePolicyFunc adapts a plain function to PrunePolicy.
type PrunePolicyFunc func(candidates map[PeerAddr]ConnectionType, k int) map[PeerAddr]struct{}

func (f PrunePolicyFunc) SelectVictims(candidates map[PeerAddr]ConnectionType, k int) map[PeerAddr]struct{} {
	return f(candidates, k)
}

// kindRank orders ConnectionType kinds from cheapest-to-evict to
// most-valuable, the same ordering spirit as the teacher's getConnsToClose
// (temporary/unestablished entries go first, established duplex peers go
// last).
func kindRank(k ConnectionTypeKind) int {
	switch k {
	case UnnegotiatedConn:
		return 0
	case InboundIdleConn:
		return 1
	case NegotiatedConn:
		return 2
	case DuplexConn:
		return 3
	default:
		return 4
	}
}

// DefaultPrunePolicy selects victims by ConnectionType rank (cheapest
// first), breaking ties by peer address for determinism — adapted from
// the teacher's getConnsToClose, which sorted candidates ascending by
// "value" (temporary entries preferred for pruning) before taking the
// first `target` of them.
var DefaultPrunePolicy PrunePolicy = PrunePolicyFunc(func(candidates map[PeerAddr]ConnectionType, k int) map[PeerAddr]struct{} {
	if k <= 0 || len(candidates) == 0 {
		return map[PeerAddr]struct{}{}
	}
	type entry struct {
		addr PeerAddr
		typ  ConnectionType
	}
	entries := make([]entry, 0, len(candidates))
	for addr, typ := range candidates {
		entries = append(entries, entry{addr, typ})
	}
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := kindRank(entries[i].typ.Kind), kindRank(entries[j].typ.Kind)
		if ri != rj {
			return ri < rj
		}
		return entries[i].addr < entries[j].addr
	})
	if k > len(entries) {
		k = len(entries)
	}
	victims := make(map[PeerAddr]struct{}, k)
	for _, e := range entries[:k] {
		victims[e.addr] = struct{}{}
	}
	return victims
})

// admissionCount reports how many entries in the table currently count
// toward acceptedConnectionsHardLimit (spec.md §4.9).
func admissionCount(entries map[PeerAddr]*PerPeerState) int {
	n := 0
	for _, cell := range entries {
		if _, ok := connectionTypeOf(cell.Get()); ok {
			n++
		}
	}
	return n
}

// runPrune implements spec.md §4.7's prune path: count admissible
// connections, and if the hard limit is exceeded, snapshot eligible
// (peer, ConnectionType) candidates — excluding protected peers
// (SPEC_FULL §4.11) — ask the PrunePolicy for a victim set, and cancel
// each victim's thread. Victim cells are never rewritten directly here;
// their own cleanup routine (thread.go) does that once cancellation is
// observed.
func (cm *ConnectionManager) runPrune() {
	entries := cm.table.Snapshot()
	count := admissionCount(entries)
	if count <= cm.cfg.AcceptedConnectionsHardLimit {
		return
	}
	excess := count - cm.cfg.AcceptedConnectionsHardLimit

	candidates := make(map[PeerAddr]ConnectionType)
	threads := make(map[PeerAddr]*connThread)
	for addr, cell := range entries {
		if cm.protected.isProtected(addr) {
			continue
		}
		s := cell.Get()
		typ, ok := connectionTypeOf(s)
		if !ok {
			continue
		}
		th, hasThread := threadOf(s)
		if !hasThread {
			continue
		}
		candidates[addr] = typ
		threads[addr] = th
	}

	victims := cm.cfg.PrunePolicy.SelectVictims(candidates, excess)
	for addr := range victims {
		cm.trace.OnPrune(addr)
		threads[addr].cancel()
	}
}
