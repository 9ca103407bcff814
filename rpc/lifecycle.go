package rpc

import (
	"errors"
	"time"
)

// State returns the peer's current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) disconnectDescription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnectDesc
}

// OnDisconnect registers h to run when the peer transitions to
// Disconnected. If that transition has already happened, h runs
// synchronously before OnDisconnect returns, so a late subscriber never
// misses the event.
func (p *Peer) OnDisconnect(h DisconnectHandler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	if p.state == StateDisconnected {
		desc := p.disconnectDesc
		p.mu.Unlock()
		h(desc)
		return
	}
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

// Done returns a channel that is closed once the peer has disconnected.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// fail transitions the peer to Disconnected, draining every pending
// outbound call and firing disconnect handlers exactly once. Safe to call
// concurrently and more than once — only the first call has any effect,
// guarded by shutdownOnce rather than a state check, since a state check
// alone leaves a window between setting Disconnecting and Disconnected in
// which a second caller could also pass.
func (p *Peer) fail(description string) {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.state = StateDisconnecting
		p.disconnectDesc = description
		p.mu.Unlock()

		p.cancel(errors.New(description))
		p.corr.drain()

		p.mu.Lock()
		p.state = StateDisconnected
		handlers := append([]DisconnectHandler(nil), p.handlers...)
		p.mu.Unlock()

		close(p.done)

		for _, h := range handlers {
			h(description)
		}
	})
}

// Shutdown disconnects the peer and waits up to its configured grace period
// for in-flight inbound handlers to finish. Idempotent: a second call
// returns immediately once the first has completed the transition.
func (p *Peer) Shutdown() {
	p.fail("shut down locally")

	waited := make(chan struct{})
	go func() {
		_ = p.handlerGroup.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(p.gracePeriod):
	}
}
