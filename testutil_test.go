package connmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

func mustAddr(s string) ma.Multiaddr {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		panic(err)
	}
	return addr
}

var fixedRemoteAddr = mustAddr("/ip4/10.0.0.1/tcp/4001")
var fixedLocalAddr = mustAddr("/ip4/10.0.0.2/tcp/4001")

// fakeSocket is the opaque Socket value fakeSocketOps vends.
type fakeSocket struct {
	mu     sync.Mutex
	closed bool
}

// fakeSocketOps is an in-memory SocketOps: no actual bytes cross the
// wire, but open/bind/connect/close are tracked so tests can assert on
// them. dialErr, when set, makes OpenToConnect fail.
type fakeSocketOps struct {
	mu      sync.Mutex
	dialErr error
	opened  int
	closed  int
}

func (f *fakeSocketOps) OpenToConnect(context.Context, ma.Multiaddr) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.opened++
	return &fakeSocket{}, nil
}

func (f *fakeSocketOps) Bind(Socket, ma.Multiaddr) error { return nil }

func (f *fakeSocketOps) Connect(context.Context, Socket, ma.Multiaddr) error { return nil }

func (f *fakeSocketOps) Close(sock Socket) error {
	s := sock.(*fakeSocket)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		f.mu.Lock()
		f.closed++
		f.mu.Unlock()
	}
	s.closed = true
	return nil
}

func (f *fakeSocketOps) GetLocalAddr(Socket) (ma.Multiaddr, error) {
	return fixedLocalAddr, nil
}

func (f *fakeSocketOps) ToBearer(sock Socket, _ time.Duration, _ TraceSink) (Bearer, error) {
	return sock, nil
}

// fakeHandler negotiates instantly: either succeeding with a fixed
// Version, or failing with a fixed HandleError, whichever was configured.
type fakeHandler struct {
	ver     Version
	failErr *HandleError
}

func (h fakeHandler) Negotiate(promise *Promise, _ TraceSink, _ ConnId, bearer BearerFactory) Action {
	return Action{
		Body: func(ctx context.Context) error {
			if h.failErr != nil {
				promise.Fail(h.failErr)
				return nil
			}
			b, err := bearer(ctx)
			if err != nil {
				promise.Fail(&HandleError{Kind: HandshakeFailure, Err: err})
				return nil
			}
			promise.Succeed(b, h.ver)
			// A real Handler's Body keeps running the application mux for
			// the life of the connection; block here too, so the thread
			// (and the state it owns) stays alive until something cancels
			// it, instead of racing the cleanup path against the caller's
			// own post-promise transition.
			<-ctx.Done()
			return ctx.Err()
		},
	}
}

func newTestManager(sockOps SocketOps, handler Handler, hardLimit int) *ConnectionManager {
	return New(Config{
		SocketOps: sockOps,
		Handler:   handler,
		AddressResolver: func(PeerAddr) (ma.Multiaddr, error) {
			return fixedRemoteAddr, nil
		},
		DataFlowFromVersion:          func(Version) DataFlow { return Duplex },
		AcceptedConnectionsHardLimit: hardLimit,
		TimeWaitTimeout:              time.Millisecond,
		Clock:                        nil, // real clock; TimeWaitTimeout above is small enough for tests
	})
}

var errDial = errors.New("fake dial failure")
