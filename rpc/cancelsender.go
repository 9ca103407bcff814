package rpc

import (
	"context"
	"sync"
)

// cancelSender emits $/cancelRequest notifications off the goroutine that
// observed a context cancellation, queued and drained by one dedicated
// goroutine so a cancel notification is never written ahead of the request
// frame it refers to and never interleaves with other queued cancels.
// Grounded on coder-acp-go-sdk's sendCancelRequest/sendCancelRequests
// (pendingCancelRequest queue + cancelRequestSignal channel).
type cancelSender struct {
	mu     sync.Mutex
	queue  []uint64
	signal chan struct{}
}

func newCancelSender() *cancelSender {
	return &cancelSender{signal: make(chan struct{}, 1)}
}

func (s *cancelSender) enqueue(id uint64) {
	s.mu.Lock()
	s.queue = append(s.queue, id)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// run drains the queue in order until ctx is done, invoking send for each
// queued id.
func (s *cancelSender) run(ctx context.Context, send func(id uint64)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			for {
				s.mu.Lock()
				if len(s.queue) == 0 {
					s.mu.Unlock()
					break
				}
				id := s.queue[0]
				s.queue = s.queue[1:]
				s.mu.Unlock()
				send(id)
			}
		}
	}
}
