package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestIncludeInboundConnects(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	result, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, peer.ID("peer-a"), fixedRemoteAddr)
	require.NoError(t, err)
	require.True(t, result.Connected)
	require.Equal(t, Duplex, result.DataFlow)

	cell, ok := cm.table.Lookup(peer.ID("peer-a"))
	require.True(t, ok)
	_, isIdle := cell.Get().(StateInboundIdle)
	require.True(t, isIdle)
}

func TestIncludeInboundHandshakeFailureSchedulesTimeWait(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{failErr: &HandleError{Kind: HandshakeFailure}}, 10)
	defer cm.Shutdown()

	result, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, peer.ID("peer-a"), fixedRemoteAddr)
	require.NoError(t, err)
	require.True(t, result.Disconnected)
	require.NotNil(t, result.HandleError)

	// TimeWaitTimeout is 1ms in the test manager; give the background
	// goroutine a moment to remove the entry.
	require.Eventually(t, func() bool {
		_, ok := cm.table.Lookup(peer.ID("peer-a"))
		return !ok
	}, time.Second, time.Millisecond)
}

func TestRequestOutboundDialsFresh(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	result, err := cm.RequestOutbound(context.Background(), peer.ID("peer-b"))
	require.NoError(t, err)
	require.True(t, result.Connected)
	require.Equal(t, Duplex, result.DataFlow)

	cell, ok := cm.table.Lookup(peer.ID("peer-b"))
	require.True(t, ok)
	dup, isDup := cell.Get().(StateOutboundDup)
	require.True(t, isDup)
	require.Equal(t, Ticking, dup.Timer)
}

func TestRequestOutboundDialFailureResetsCell(t *testing.T) {
	sockOps := &fakeSocketOps{dialErr: errDial}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	_, err := cm.RequestOutbound(context.Background(), peer.ID("peer-c"))
	require.ErrorIs(t, err, errDial)

	_, ok := cm.table.Lookup(peer.ID("peer-c"))
	require.False(t, ok, "a failed dial must not leave an entry behind")
}

func TestRequestOutboundReusesDuplexInbound(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-d")
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, addr, fixedRemoteAddr)
	require.NoError(t, err)

	result, err := cm.RequestOutbound(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, result.Connected)

	cell, _ := cm.table.Lookup(addr)
	_, isDup := cell.Get().(StateOutboundDup)
	require.True(t, isDup)
}

func TestRequestOutboundRejectsExistingOutbound(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-e")
	_, err := cm.RequestOutbound(context.Background(), addr)
	require.NoError(t, err)

	_, err = cm.RequestOutbound(context.Background(), addr)
	require.Error(t, err)
	var existsErr *ErrConnectionExists
	require.ErrorAs(t, err, &existsErr)
}

func TestUnregisterInboundDemotesOutboundDupTimer(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-f")
	_, err := cm.RequestOutbound(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, cm.UnregisterInbound(addr))
	cell, _ := cm.table.Lookup(addr)
	dup := cell.Get().(StateOutboundDup)
	require.Equal(t, Expired, dup.Timer)

	// Idempotent: calling again on an already-Expired timer is a no-op.
	require.NoError(t, cm.UnregisterInbound(addr))
}

func TestUnregisterInboundDefensiveTransitionFromInbound(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-g")
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, addr, fixedRemoteAddr)
	require.NoError(t, err)
	require.NoError(t, cm.PromotedToWarmRemote(addr))

	err = cm.UnregisterInbound(addr)
	var unsupported *ErrUnsupportedState
	require.ErrorAs(t, err, &unsupported)

	cell, _ := cm.table.Lookup(addr)
	_, isTerminating := cell.Get().(StateTerminating)
	require.True(t, isTerminating, "unregisterInbound must still perform the defensive demotion")
}

func TestPromoteDemoteCycle(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-h")
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, addr, fixedRemoteAddr)
	require.NoError(t, err)

	require.NoError(t, cm.PromotedToWarmRemote(addr))
	cell, _ := cm.table.Lookup(addr)
	_, isInbound := cell.Get().(StateInbound)
	require.True(t, isInbound)

	require.NoError(t, cm.DemotedToColdRemote(addr))
	_, isIdle := cell.Get().(StateInboundIdle)
	require.True(t, isIdle)
}

func TestUnregisterOutboundDemotesDuplexToInbound(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	addr := peer.ID("peer-i")
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, addr, fixedRemoteAddr)
	require.NoError(t, err)
	_, err = cm.RequestOutbound(context.Background(), addr) // -> OutboundDup(Ticking)
	require.NoError(t, err)
	require.NoError(t, cm.PromotedToWarmRemote(addr)) // -> Duplex

	require.NoError(t, cm.UnregisterOutbound(addr))
	cell, _ := cm.table.Lookup(addr)
	_, isInbound := cell.Get().(StateInbound)
	require.True(t, isInbound)
}

func TestProtectedPeerSurvivesPrune(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 0) // any admissible connection exceeds the limit
	defer cm.Shutdown()

	protectedAddr, victimAddr := peer.ID("protected"), peer.ID("victim")
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, protectedAddr, fixedRemoteAddr)
	require.NoError(t, err)
	_, err = cm.IncludeInbound(context.Background(), &fakeSocket{}, victimAddr, fixedRemoteAddr)
	require.NoError(t, err)

	cm.Protect(protectedAddr, "test")
	cm.runPrune()

	protCell, _ := cm.table.Lookup(protectedAddr)
	_, stillIdle := protCell.Get().(StateInboundIdle)
	require.True(t, stillIdle, "a protected peer must never be selected as a prune victim")

	// runPrune only cancels the victim's thread; the transition itself
	// happens asynchronously on the connection's own goroutine once
	// cancellation is observed (cleanupThread's InboundIdle path moves
	// straight to Terminated and schedules TIME_WAIT removal).
	victimCell, _ := cm.table.Lookup(victimAddr)
	require.Eventually(t, func() bool {
		_, terminated := victimCell.Get().(StateTerminated)
		return terminated
	}, time.Second, time.Millisecond, "the unprotected peer should be the one pruned")
}

func TestShutdownQuiescesWithoutLeakingGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t,
		// goroutines parked in the runtime's network poller are not
		// goroutines this package owns.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)

	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, peer.ID("peer-j"), fixedRemoteAddr)
	require.NoError(t, err)
	_, err = cm.RequestOutbound(context.Background(), peer.ID("peer-k"))
	require.NoError(t, err)

	cm.Shutdown()
}

func TestNumberOfConnections(t *testing.T) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 10)
	defer cm.Shutdown()

	require.Equal(t, 0, cm.NumberOfConnections())
	_, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, peer.ID("peer-l"), fixedRemoteAddr)
	require.NoError(t, err)
	require.Equal(t, 1, cm.NumberOfConnections())
}
