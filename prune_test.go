package connmgr

import (
	"testing"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrunePolicyPrefersCheapestFirst(t *testing.T) {
	candidates := map[PeerAddr]ConnectionType{
		peer.ID("duplex"):      {Kind: DuplexConn},
		peer.ID("negotiated"):  {Kind: NegotiatedConn},
		peer.ID("inboundidle"): {Kind: InboundIdleConn},
		peer.ID("unnegotiated"): {Kind: UnnegotiatedConn},
	}

	victims := DefaultPrunePolicy.SelectVictims(candidates, 2)
	require.Len(t, victims, 2)
	_, gotUnnegotiated := victims[peer.ID("unnegotiated")]
	_, gotInboundIdle := victims[peer.ID("inboundidle")]
	require.True(t, gotUnnegotiated)
	require.True(t, gotInboundIdle)
}

func TestDefaultPrunePolicyZeroOrNegativeK(t *testing.T) {
	candidates := map[PeerAddr]ConnectionType{peer.ID("a"): {Kind: DuplexConn}}
	require.Empty(t, DefaultPrunePolicy.SelectVictims(candidates, 0))
	require.Empty(t, DefaultPrunePolicy.SelectVictims(candidates, -1))
}

func TestDefaultPrunePolicyCapsAtCandidateCount(t *testing.T) {
	candidates := map[PeerAddr]ConnectionType{peer.ID("a"): {Kind: DuplexConn}}
	victims := DefaultPrunePolicy.SelectVictims(candidates, 5)
	require.Len(t, victims, 1)
}

func TestAdmissionCountOnlyCountsEligibleStates(t *testing.T) {
	entries := map[PeerAddr]*PerPeerState{
		peer.ID("reserved"):      newPerPeerState(StateReservedOutbound{}),
		peer.ID("inbound-idle"):  newPerPeerState(StateInboundIdle{}),
		peer.ID("terminated"):    newPerPeerState(StateTerminated{}),
		peer.ID("unneg-inbound"): newPerPeerState(StateUnnegotiated{Provenance: Inbound}),
		peer.ID("unneg-outbound"): newPerPeerState(StateUnnegotiated{Provenance: Outbound}),
	}
	require.Equal(t, 2, admissionCount(entries))
}
