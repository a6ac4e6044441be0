package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerPeerStateWaitUntilWakesOnSet(t *testing.T) {
	cell := newPerPeerState(StateReservedOutbound{})

	done := make(chan ConnectionState, 1)
	go func() {
		state, err := cell.WaitUntil(context.Background(), func(s ConnectionState) bool {
			_, isTerminated := s.(StateTerminated)
			return isTerminated
		})
		require.NoError(t, err)
		done <- state
	}()

	time.Sleep(10 * time.Millisecond) // give the waiter time to block
	cell.Set(StateTerminated{})

	select {
	case state := <-done:
		_, ok := state.(StateTerminated)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitUntil never woke up")
	}
}

func TestPerPeerStateWaitUntilReturnsImmediatelyIfAlreadyTrue(t *testing.T) {
	cell := newPerPeerState(StateTerminated{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	state, err := cell.WaitUntil(ctx, func(s ConnectionState) bool {
		_, ok := s.(StateTerminated)
		return ok
	})
	require.NoError(t, err)
	_, ok := state.(StateTerminated)
	require.True(t, ok)
}

func TestPerPeerStateWaitUntilRespectsCancellation(t *testing.T) {
	cell := newPerPeerState(StateReservedOutbound{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cell.WaitUntil(ctx, func(ConnectionState) bool { return false })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPerPeerStateUpdate(t *testing.T) {
	cell := newPerPeerState(StateReservedOutbound{})
	next := cell.Update(func(ConnectionState) ConnectionState {
		return StateTerminated{}
	})
	_, ok := next.(StateTerminated)
	require.True(t, ok)
	_, ok = cell.Get().(StateTerminated)
	require.True(t, ok)
}
