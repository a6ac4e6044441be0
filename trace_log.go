package connmgr

import logging "github.com/ipfs/go-log"

// log is the package-wide logger, created with the teacher's
// `logging.Logger("connmgr")` call; events are written as plain
// Info/Error lines, not through EventBegin/Event.
var log = logging.Logger("connmgr")

// logTraceSink renders every trace event as a structured go-log line. It
// is always present (wrapped into Config's sink list even when the caller
// supplies their own), so operational logs never depend on whether a
// metrics backend is wired up.
type logTraceSink struct{}

func (logTraceSink) OnTransition(peer PeerAddr, op string, from, to ConnectionState) {
	log.Infof("connmgr: %s %s: %s -> %s", peer, op, from.Name(), to.Name())
}

func (logTraceSink) OnPrune(peer PeerAddr) {
	log.Infof("connmgr: pruning peer %s", peer)
}

func (logTraceSink) OnShutdown() {
	log.Info("connmgr: shutdown")
}

func (logTraceSink) OnAssertionViolation(peer PeerAddr, detail string) {
	log.Errorf("connmgr: assertion-violation peer=%s detail=%s", peer, detail)
}
