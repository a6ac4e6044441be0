package socketio

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/meridiannet/connmgr"
)

// VersionHandler is a minimal connmgr.Handler: it writes its own version
// as a big-endian uint32, reads the peer's, and keeps the lower of the two
// as the negotiated Version. Good enough to drive the connmgr demo binary
// end to end without a real application protocol on top.
type VersionHandler struct {
	LocalVersion connmgr.Version
}

func (h VersionHandler) Negotiate(promise *connmgr.Promise, trace connmgr.TraceSink, connId connmgr.ConnId, bearer connmgr.BearerFactory) connmgr.Action {
	return connmgr.Action{
		Body: func(ctx context.Context) error {
			b, err := bearer(ctx)
			if err != nil {
				promise.Fail(&connmgr.HandleError{Kind: connmgr.HandshakeFailure, Err: err})
				return nil
			}
			conn, ok := b.(net.Conn)
			if !ok {
				promise.Fail(&connmgr.HandleError{
					Kind: connmgr.HandshakeProtocolViolation,
					Err:  fmt.Errorf("socketio: bearer is not a net.Conn"),
				})
				return nil
			}

			var out [4]byte
			binary.BigEndian.PutUint32(out[:], uint32(h.LocalVersion))
			if _, err := conn.Write(out[:]); err != nil {
				promise.Fail(&connmgr.HandleError{Kind: connmgr.HandshakeFailure, Err: err})
				return nil
			}

			var in [4]byte
			if _, err := readFull(conn, in[:]); err != nil {
				promise.Fail(&connmgr.HandleError{Kind: connmgr.HandshakeFailure, Err: err})
				return nil
			}
			peerVer := connmgr.Version(binary.BigEndian.Uint32(in[:]))

			negotiated := h.LocalVersion
			if peerVer < negotiated {
				negotiated = peerVer
			}
			promise.Succeed(conn, negotiated)

			// Keep the thread alive for the life of the connection; a real
			// application mux would read/write conn here instead of just
			// waiting on cancellation.
			<-ctx.Done()
			return ctx.Err()
		},
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DataFlowFromVersion classifies every negotiated version as Duplex; a
// real protocol would reserve some version range for Unidirectional-only
// peers (spec.md §4.4/§4.5).
func DataFlowFromVersion(connmgr.Version) connmgr.DataFlow {
	return connmgr.Duplex
}
