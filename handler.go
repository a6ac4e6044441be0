package connmgr

import "context"

// Version is the value negotiated by the Handler; Config.DataFlowFromVersion
// maps it to a DataFlow.
type Version uint32

// BearerFactory lets the Handler's body turn the raw socket into a Bearer
// once it is ready to. The factory the CM supplies ignores ctx and passes
// Config.ProtocolIdleTimeout to SocketOps.ToBearer.
type BearerFactory func(ctx context.Context) (Bearer, error)

// handlerOutcome is what the Handler's body writes into the promise: either
// a negotiated handle, or a classified failure.
type handlerOutcome struct {
	Handle interface{}
	Ver    Version
	Err    *HandleError
}

// Promise is the single-writer/single-reader cell the Handler's body
// fulfills and includeInbound/requestOutbound wait on (spec.md §4.4 step 2,
// §4.5 Phase A/B).
type Promise struct {
	ch chan handlerOutcome
}

func newPromise() *Promise {
	return &Promise{ch: make(chan handlerOutcome, 1)}
}

// fulfill is called at most once, by the Handler's body.
func (p *Promise) fulfill(o handlerOutcome) {
	p.ch <- o
}

// Succeed fulfills the promise with a negotiated handle and version.
// External Handler implementations call this (or Fail) exactly once from
// within their Action.Body.
func (p *Promise) Succeed(handle interface{}, ver Version) {
	p.fulfill(handlerOutcome{Handle: handle, Ver: ver})
}

// Fail fulfills the promise with a classified handshake failure.
func (p *Promise) Fail(err *HandleError) {
	p.fulfill(handlerOutcome{Err: err})
}

// wait blocks for the Handler's body to fulfill the promise or for ctx to
// be cancelled.
func (p *Promise) wait(ctx context.Context) (handlerOutcome, error) {
	select {
	case o := <-p.ch:
		return o, nil
	case <-ctx.Done():
		return handlerOutcome{}, ctx.Err()
	}
}

// Action is what Handler.Negotiate returns: a body to run on the
// connection thread, and an optional error handler invoked with any
// non-nil error the body returns, whether or not the promise was already
// fulfilled (including the cancellation error a body returns on shutdown).
type Action struct {
	Body        func(ctx context.Context) error
	ErrorHandler func(error)
}

// Handler is the external collaborator that negotiates a version on a
// freshly opened socket and then runs the application-level mux
// (spec.md §6). The CM only observes success/failure through the promise;
// it never interprets the handle.
type Handler interface {
	Negotiate(promise *Promise, trace TraceSink, connId ConnId, bearer BearerFactory) Action
}
