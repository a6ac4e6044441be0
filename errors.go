package connmgr

import "fmt"

// HandleErrorKind classifies a handler failure (spec.md §7).
type HandleErrorKind int

const (
	// HandshakeFailure is soft: the CM still honours TIME_WAIT for the
	// socket.
	HandshakeFailure HandleErrorKind = iota
	// HandshakeProtocolViolation is hard: the CM skips TIME_WAIT.
	HandshakeProtocolViolation
)

func (k HandleErrorKind) String() string {
	switch k {
	case HandshakeFailure:
		return "handshake-failure"
	case HandshakeProtocolViolation:
		return "handshake-protocol-violation"
	default:
		return "unknown-handle-error-kind"
	}
}

// HandleError wraps a failure reported by the Handler (spec.md §6, §7).
type HandleError struct {
	Kind HandleErrorKind
	Err  error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("handler error (%s): %v", e.Kind, e.Err)
}

func (e *HandleError) Unwrap() error { return e.Err }

// ErrConnectionExists is returned when requestOutbound is called for a
// peer that already has a usable outbound connection.
type ErrConnectionExists struct {
	Provenance Provenance
	Peer       PeerAddr
}

func (e *ErrConnectionExists) Error() string {
	return fmt.Sprintf("connection already exists for peer %s (provenance %s)", e.Peer, e.Provenance)
}

// ErrForbiddenConnection is returned when a negotiated DataFlow disallows
// the requested direction.
type ErrForbiddenConnection struct {
	ConnId ConnId
}

func (e *ErrForbiddenConnection) Error() string {
	return fmt.Sprintf("connection %s does not permit this direction", e.ConnId)
}

// ErrForbiddenOperation is returned when an operation is not legal in the
// peer's current state.
type ErrForbiddenOperation struct {
	Peer    PeerAddr
	InState ConnectionState
}

func (e *ErrForbiddenOperation) Error() string {
	return fmt.Sprintf("operation forbidden for peer %s in state %s", e.Peer, e.InState.Name())
}

// ErrImpossibleState signals an invariant violation: a bug, not a runtime
// condition callers should expect to handle.
type ErrImpossibleState struct {
	Peer    PeerAddr
	InState ConnectionState
}

func (e *ErrImpossibleState) Error() string {
	return fmt.Sprintf("impossible state for peer %s: %s", e.Peer, e.InState.Name())
}

// ErrUnsupportedState is returned for lifecycle conditions that are not
// fatal but also not the operation's intended precondition (redundant
// demote, missing peer, stale transition) — spec.md §7: "those produce
// UnsupportedState(inState)".
type ErrUnsupportedState struct {
	Peer    PeerAddr
	InState ConnectionState // nil if the peer is simply unknown
}

func (e *ErrUnsupportedState) Error() string {
	if e.InState == nil {
		return fmt.Sprintf("unknown peer %s", e.Peer)
	}
	return fmt.Sprintf("unsupported state for peer %s: %s", e.Peer, e.InState.Name())
}

// Unwrap reports ErrUnknownConnection when the peer is simply unknown.
func (e *ErrUnsupportedState) Unwrap() error {
	if e.InState == nil {
		return ErrUnknownConnection
	}
	return nil
}

// ErrUnknownConnection is wrapped by the ErrUnsupportedState an operation
// returns when it references a peer that is not in the table; test for it
// with errors.Is.
var ErrUnknownConnection = fmt.Errorf("unknown connection")
