package rpc

import (
	"sync"
	"sync/atomic"
)

// pendingCall is an in-flight outbound request awaiting its response. The
// channel is buffered by one so resolve never blocks on a waiter that has
// already given up.
type pendingCall struct {
	ch chan *message
}

// correlator allocates peer-scoped monotonic request ids and tracks pending
// outbound calls, grounded on coder-acp-go-sdk's nextID/pending table,
// cross-checked against stefanvanburen-cells.Conn's simpler pend map.
type correlator struct {
	mu      sync.Mutex
	nextID  atomic.Uint64
	pending map[uint64]*pendingCall
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint64]*pendingCall)}
}

func (c *correlator) allocate() (uint64, *pendingCall) {
	id := c.nextID.Add(1)
	pc := &pendingCall{ch: make(chan *message, 1)}
	c.mu.Lock()
	c.pending[id] = pc
	c.mu.Unlock()
	return id, pc
}

// forget removes a pending call without resolving it, used when its request
// frame is never written: the peer had already left Active, or the write
// failed.
func (c *correlator) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve delivers a response to its waiter. Returns false for a response
// whose id has no (or no longer has a) pending waiter — a duplicate or
// late response is silently dropped rather than treated as an error.
func (c *correlator) resolve(id uint64, msg *message) bool {
	c.mu.Lock()
	pc := c.pending[id]
	if pc != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if pc == nil {
		return false
	}
	pc.ch <- msg
	return true
}

// drain completes every still-pending call by closing its channel, waking
// any goroutine blocked in Invoke with a disconnected result.
func (c *correlator) drain() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.mu.Unlock()
	for _, pc := range pending {
		close(pc.ch)
	}
}
