// Package socketio provides a concrete connmgr.SocketOps backed by real
// TCP sockets, and a small demo Handler alongside it (SPEC_FULL §6). The
// connmgr package itself never imports net directly — this is the only
// place that does.
package socketio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/meridiannet/connmgr"
)

// tcpSocket is the concrete value behind connmgr.Socket for this
// implementation. Dialing is split across OpenToConnect/Bind/Connect the
// same way connmgr.SocketOps requires, so a Bind failure never leaves a
// live net.Conn for the caller to leak.
type tcpSocket struct {
	mu      sync.Mutex
	network string
	address string
	dialer  net.Dialer
	conn    net.Conn
}

// TCPSocketOps implements connmgr.SocketOps over net.Dial/net.Listen.
type TCPSocketOps struct{}

// NewTCPSocketOps constructs the default, dependency-free SocketOps.
func NewTCPSocketOps() TCPSocketOps { return TCPSocketOps{} }

func (TCPSocketOps) OpenToConnect(_ context.Context, addr ma.Multiaddr) (connmgr.Socket, error) {
	network, address, err := manet.DialArgs(addr)
	if err != nil {
		return nil, fmt.Errorf("socketio: resolving dial args for %s: %w", addr, err)
	}
	return &tcpSocket{network: network, address: address}, nil
}

func (TCPSocketOps) Bind(sock connmgr.Socket, localAddr ma.Multiaddr) error {
	s, ok := sock.(*tcpSocket)
	if !ok {
		return errors.New("socketio: not a tcpSocket")
	}
	network, address, err := manet.DialArgs(localAddr)
	if err != nil {
		return fmt.Errorf("socketio: resolving local bind address %s: %w", localAddr, err)
	}
	laddr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return fmt.Errorf("socketio: resolving local tcp addr: %w", err)
	}
	s.mu.Lock()
	s.dialer.LocalAddr = laddr
	s.mu.Unlock()
	return nil
}

func (TCPSocketOps) Connect(ctx context.Context, sock connmgr.Socket, _ ma.Multiaddr) error {
	s, ok := sock.(*tcpSocket)
	if !ok {
		return errors.New("socketio: not a tcpSocket")
	}
	conn, err := s.dialer.DialContext(ctx, s.network, s.address)
	if err != nil {
		return fmt.Errorf("socketio: dial %s %s: %w", s.network, s.address, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (TCPSocketOps) Close(sock connmgr.Socket) error {
	s, ok := sock.(*tcpSocket)
	if !ok {
		return errors.New("socketio: not a tcpSocket")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (TCPSocketOps) GetLocalAddr(sock connmgr.Socket) (ma.Multiaddr, error) {
	s, ok := sock.(*tcpSocket)
	if !ok {
		return nil, errors.New("socketio: not a tcpSocket")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, errors.New("socketio: socket not yet connected")
	}
	return manet.FromNetAddr(conn.LocalAddr())
}

// ToBearer applies the idle timeout as a read/write deadline and hands back the
// raw net.Conn; connmgr never looks inside the Bearer it receives.
func (TCPSocketOps) ToBearer(sock connmgr.Socket, timeout time.Duration, _ connmgr.TraceSink) (connmgr.Bearer, error) {
	s, ok := sock.(*tcpSocket)
	if !ok {
		return nil, errors.New("socketio: not a tcpSocket")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, errors.New("socketio: socket not yet connected")
	}
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("socketio: setting bearer deadline: %w", err)
		}
	}
	return conn, nil
}

// Listener wraps a net.Listener and hands out accepted connections already
// packaged as connmgr.Socket + the remote multiaddr includeInbound needs.
type Listener struct {
	ln net.Listener
}

// Listen starts listening on addr.
func Listen(addr ma.Multiaddr) (*Listener, error) {
	ln, err := manet.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("socketio: listen on %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (connmgr.Socket, ma.Multiaddr, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	remote, err := manet.FromNetAddr(conn.RemoteAddr())
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("socketio: converting remote addr: %w", err)
	}
	network, address, err := manet.DialArgs(remote)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return &tcpSocket{network: network, address: address, conn: conn}, remote, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr reports the address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
