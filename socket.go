package connmgr

import (
	"context"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// Socket is the opaque transport handle SocketOps vends and the
// connection thread eventually turns into a Bearer for the Handler.
type Socket interface{}

// Bearer is the opaque, already-negotiated transport surface handed to the
// application-level mux once the Handler succeeds. The CM never looks
// inside it.
type Bearer interface{}

// SocketOps is the socket abstraction the CM consumes (spec.md §6);
// bind/connect/accept/close/local-address lookup live entirely outside
// this package.
type SocketOps interface {
	// OpenToConnect allocates a socket suitable for dialing addr.
	OpenToConnect(ctx context.Context, addr ma.Multiaddr) (Socket, error)
	// Bind binds sock to localAddr before connecting, when a local bind
	// address is configured for the target's address family.
	Bind(sock Socket, localAddr ma.Multiaddr) error
	// Connect dials peerAddr over sock.
	Connect(ctx context.Context, sock Socket, peerAddr ma.Multiaddr) error
	// Close releases sock. Idempotent.
	Close(sock Socket) error
	// GetLocalAddr reports the local address a bound/connected socket ended
	// up on.
	GetLocalAddr(sock Socket) (ma.Multiaddr, error)
	// ToBearer upgrades sock into the Bearer the Handler will multiplex
	// over, subject to timeout.
	ToBearer(sock Socket, timeout time.Duration, trace TraceSink) (Bearer, error)
}
