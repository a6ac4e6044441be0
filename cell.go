package connmgr

import (
	"context"
	"sync"
)

// PerPeerState is the atomic cell holding one peer's ConnectionState
// (spec.md §3, §4.2). It is guarded by its own mutex so that most
// reads/writes never contend on the table-wide lock M, and carries a
// condition variable so callers can block on a state change (spec.md §9:
// "mutex-guarded variant plus a condition variable signalled on every
// write").
//
// A cell is never reused after its entry is removed from the table; a
// fresh peer connection always allocates a new cell (spec.md §4.2).
type PerPeerState struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state ConnectionState
}

func newPerPeerState(initial ConnectionState) *PerPeerState {
	c := &PerPeerState{state: initial}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Get reads the current state.
func (c *PerPeerState) Get() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Set overwrites the state and wakes every waiter.
func (c *PerPeerState) Set(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Update runs f against the current state under the cell's lock and
// installs whatever it returns; f must not block or perform I/O, matching
// spec.md §5's "public ops hold M only long enough to read the cell,
// decide, and write — never across I/O" (the same discipline applies to
// the per-cell lock).
func (c *PerPeerState) Update(f func(ConnectionState) ConnectionState) ConnectionState {
	c.mu.Lock()
	next := f(c.state)
	c.state = next
	c.mu.Unlock()
	c.cond.Broadcast()
	return next
}

// WaitUntil blocks until pred(currentState) is true or ctx is cancelled,
// returning the state that satisfied pred. Used by requestOutbound's Phase
// A ("Terminating" retry) and Phase B ("There", awaiting negotiation).
func (c *PerPeerState) WaitUntil(ctx context.Context, pred func(ConnectionState) bool) (ConnectionState, error) {
	// sync.Cond has no native cancellation; a watcher goroutine turns ctx
	// cancellation into a broadcast so Wait() can re-check and exit.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Taking the lock orders this broadcast after the waiter's
			// ctx.Err() check, so the wakeup cannot be lost.
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !pred(c.state) {
		if err := ctx.Err(); err != nil {
			return c.state, err
		}
		c.cond.Wait()
	}
	return c.state, nil
}
