package connmgr

import "github.com/raulk/go-watchdog"

// startWatchdog wires github.com/raulk/go-watchdog into the manager so
// that rising memory pressure triggers the same prune path the hard
// connection limit does (SPEC_FULL §4.14), rather than waiting for the
// next operation that happens to push the table over the limit. Returns a
// stop function Shutdown calls before waiting on cm.wg.
func (cm *ConnectionManager) startWatchdog() func() {
	notifyCh := make(chan struct{}, 1)
	watchdog.RegisterPostGCNotifee(notifyCh)

	stop, err := watchdog.SystemDriven(cm.cfg.WatchdogLimitBytes, cm.cfg.WatchdogPollInterval, watchdog.NewAdaptivePolicy(0.5))
	if err != nil {
		log.Errorf("connmgr: watchdog disabled: %s", err)
		return func() {}
	}

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for {
			select {
			case <-notifyCh:
				log.Info("connmgr: watchdog signalled memory pressure, running prune")
				cm.runPrune()
			case <-cm.ctx.Done():
				return
			}
		}
	}()

	return stop
}
