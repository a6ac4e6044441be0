package connmgr

import "sync"

// StateTable maps peerAddr -> *PerPeerState, guarded by a single coarse
// mutex M (spec.md §4.1, §5). Table-level operations (lookup, insert,
// delete, snapshot) are held only long enough to mutate the map; per-peer
// state mutation happens on the cell's own lock (cell.go), never while
// holding M across I/O.
type StateTable struct {
	mu      sync.Mutex
	entries map[PeerAddr]*PerPeerState
}

func newStateTable() *StateTable {
	return &StateTable{entries: make(map[PeerAddr]*PerPeerState)}
}

// Lookup returns the current cell for addr, if any.
func (t *StateTable) Lookup(addr PeerAddr) (*PerPeerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.entries[addr]
	return c, ok
}

// Insert unconditionally installs cell as the entry for addr, discarding
// whatever was there before. This is the "overwrite" spec.md §4.4 and §5
// mandate for near-simultaneous open: the previous cell must never remain
// referenced from the table, even if some goroutine is still waiting on it
// (that goroutine holds its own pointer and will observe the replacement
// the next time it reads the table, per spec.md §5's ordering guarantee).
func (t *StateTable) Insert(addr PeerAddr, cell *PerPeerState) {
	t.mu.Lock()
	t.entries[addr] = cell
	t.mu.Unlock()
}

// InsertIfAbsent installs cell only if no entry exists yet, returning the
// entry that is present afterward (either the one just inserted, or a
// pre-existing one that won the race) and whether the insert happened.
func (t *StateTable) InsertIfAbsent(addr PeerAddr, cell *PerPeerState) (*PerPeerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[addr]; ok {
		return existing, false
	}
	t.entries[addr] = cell
	return cell, true
}

// Remove unconditionally deletes the entry for addr. Callers must have
// already verified (invariant 3) that the cell's state is Terminating or
// Terminated before calling this.
func (t *StateTable) Remove(addr PeerAddr) {
	t.mu.Lock()
	delete(t.entries, addr)
	t.mu.Unlock()
}

// RemoveIfSame deletes the entry for addr only if it is still exactly
// cell — used by the TIME_WAIT cleanup path (spec.md §4.3) so that a fresh
// connection which legally reinserted a new cell at this key during the
// sleep is never deleted by a stale cleanup goroutine.
func (t *StateTable) RemoveIfSame(addr PeerAddr, cell *PerPeerState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.entries[addr]; ok && current == cell {
		delete(t.entries, addr)
		return true
	}
	return false
}

// Snapshot returns a shallow copy of the current addr -> cell mapping.
// Entries themselves remain independently atomic (spec.md §4.1).
func (t *StateTable) Snapshot() map[PeerAddr]*PerPeerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[PeerAddr]*PerPeerState, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Len reports the number of tracked peers.
func (t *StateTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
