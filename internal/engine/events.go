// ABOUTME: Event fan-out shared by all engine backends
// ABOUTME: Holds the single subscriber behind a mutex for safe emission
package engine

import (
	"sync"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// notifier delivers engine events to the single subscriber. Emissions
// after Unsubscribe are dropped here; the controller has its own
// staleness check on top.
type notifier struct {
	mu   sync.Mutex
	sink func(probe.Event)
}

func (n *notifier) Subscribe(fn func(probe.Event)) *probe.Subscription {
	n.mu.Lock()
	n.sink = fn
	n.mu.Unlock()
	return probe.NewSubscription(func() {
		n.mu.Lock()
		n.sink = nil
		n.mu.Unlock()
	})
}

func (n *notifier) emit(ev probe.Event) {
	n.mu.Lock()
	fn := n.sink
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (n *notifier) emitError(err *probe.EngineError) {
	n.emit(probe.Event{Type: probe.EventError, Err: err})
}
