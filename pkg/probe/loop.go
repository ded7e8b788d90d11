// ABOUTME: Single-goroutine run loop owning all session state mutation
// ABOUTME: The Go rendition of the platform main thread callbacks marshal onto
package probe

import "sync"

// Loop is a serialized task queue drained by a single goroutine. Every
// status and log mutation in this package executes on a Loop, so
// observers never see torn state.
type Loop struct {
	mu    sync.Mutex
	queue []func()

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a loop. Run must be called for tasks to execute.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run drains dispatched tasks in FIFO order until Close is called. It
// blocks; callers typically run it on a dedicated goroutine.
func (l *Loop) Run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Dispatch enqueues fn for execution on the loop goroutine. It never
// blocks the caller. Dispatching after Close is a no-op.
func (l *Loop) Dispatch(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close stops the loop. Idempotent. Tasks not yet started are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}
