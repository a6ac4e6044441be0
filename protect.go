package connmgr

import "sync"

// protectedSet tracks peers that PrunePolicy must never see as candidates
// (SPEC_FULL §4.11). Adapted from the teacher's segments/segment sharded
// locking — kept as a technique because Protect/Unprotect/IsProtected are
// called from arbitrary goroutines at high frequency in a busy node and
// benefit from the same lock-striping the teacher used for its peerInfo
// map, even though the per-tag value scoring that came with it
// (TagPeer/UpsertTag/GetTagInfo) has no role in the new prune path and was
// dropped.
type protectedSet struct {
	segments [256]*protectSegment
}

type protectSegment struct {
	mu   sync.Mutex
	tags map[PeerAddr]map[string]struct{}
}

func newProtectedSet() *protectedSet {
	var ps protectedSet
	for i := range ps.segments {
		ps.segments[i] = &protectSegment{tags: make(map[PeerAddr]map[string]struct{})}
	}
	return &ps
}

func (ps *protectedSet) segmentFor(p PeerAddr) *protectSegment {
	if len(p) == 0 {
		return ps.segments[0]
	}
	return ps.segments[byte(p[len(p)-1])]
}

// Protect marks p as protected under tag; a peer stays protected as long
// as at least one tag is held.
func (ps *protectedSet) Protect(p PeerAddr, tag string) {
	seg := ps.segmentFor(p)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	tags, ok := seg.tags[p]
	if !ok {
		tags = make(map[string]struct{}, 1)
		seg.tags[p] = tags
	}
	tags[tag] = struct{}{}
}

// Unprotect releases tag from p, reporting whether p is still protected by
// some other tag afterward.
func (ps *protectedSet) Unprotect(p PeerAddr, tag string) bool {
	seg := ps.segmentFor(p)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	tags, ok := seg.tags[p]
	if !ok {
		return false
	}
	delete(tags, tag)
	if len(tags) == 0 {
		delete(seg.tags, p)
		return false
	}
	return true
}

// IsProtected reports whether p currently holds any protect tag.
func (ps *protectedSet) IsProtected(p PeerAddr) bool {
	return ps.isProtected(p)
}

func (ps *protectedSet) isProtected(p PeerAddr) bool {
	seg := ps.segmentFor(p)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	_, ok := seg.tags[p]
	return ok
}

// forget drops all protect tags for p — called when a peer's entry is
// finally removed from the StateTable, so the protected set does not leak
// memory for peers that will never reconnect.
func (ps *protectedSet) forget(p PeerAddr) {
	seg := ps.segmentFor(p)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	delete(seg.tags, p)
}
