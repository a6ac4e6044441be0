package connmgr

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/libp2p/go-libp2p-core/peer"
)

func randomPeers(n int) []PeerAddr {
	out := make([]PeerAddr, n)
	for i := range out {
		out[i] = peer.ID(fmt.Sprintf("bench-peer-%d", i))
	}
	return out
}

// BenchmarkLockContention drives concurrent Protect/Unprotect calls
// against the same peer pool a busy node would, measuring how much the
// per-peer lock striping in protect.go buys under contention.
func BenchmarkLockContention(b *testing.B) {
	peers := randomPeers(5000)
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 1000)
	defer cm.Shutdown()

	kill := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-kill:
					return
				default:
					p := peers[rand.Intn(len(peers))]
					cm.Protect(p, "bench-tag")
				}
			}
		}()
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := peers[rand.Intn(len(peers))]
		cm.Protect(p, "primary")
		cm.Unprotect(p, "primary")
	}
	close(kill)
	wg.Wait()
}

// BenchmarkIncludeInbound measures the cost of the full accept path:
// table insert, thread spawn, instant handshake, and the resulting
// InboundIdle transition.
func BenchmarkIncludeInbound(b *testing.B) {
	sockOps := &fakeSocketOps{}
	cm := newTestManager(sockOps, fakeHandler{ver: 1}, 1<<30)
	defer cm.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		addr := peer.ID(fmt.Sprintf("bench-inbound-%d", i))
		if _, err := cm.IncludeInbound(context.Background(), &fakeSocket{}, addr, fixedRemoteAddr); err != nil {
			b.Fatal(err)
		}
	}
}
