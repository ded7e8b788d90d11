// ABOUTME: Engine contract between the session controller and audio backends
// ABOUTME: Defines lifecycle events, stream metadata, errors and subscriptions
package probe

import (
	"fmt"
	"sync"
)

// EventType identifies an engine lifecycle notification.
type EventType string

const (
	// EventBuffering fires while the engine is filling its buffer.
	EventBuffering EventType = "buffering"
	// EventReady fires once enough data is buffered to begin output.
	EventReady EventType = "ready"
	// EventMetadata fires when in-band stream metadata changes.
	EventMetadata EventType = "metadata"
	// EventEnded fires when the stream finished normally.
	EventEnded EventType = "ended"
	// EventError fires on any engine failure. Errors are terminal for
	// the session; the engine will not recover or retry.
	EventError EventType = "error"
)

// StreamInfo describes the stream an engine connected to. Fields that
// the server did not report are zero.
type StreamInfo struct {
	SampleRate  int
	Channels    int
	BitrateKbps int
	Name        string
	Genre       string
	ContentType string
}

// Event is a single engine notification. Err is set for EventError,
// Title for EventMetadata, Info for EventReady when known.
type Event struct {
	Type  EventType
	Err   *EngineError
	Title string
	Info  *StreamInfo
}

// EngineError describes an engine failure. Kind is a short machine
// token (http_status, connect, decode, output, stream), Message the
// human-readable detail shown in the diagnostic log.
type EngineError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Engine is one playback attempt bound to a single URL. Engines are
// single-use: after Release they never emit events and cannot restart.
//
// Play is idempotent; calling it on an engine that is already playing
// is a no-op. Stop halts output, Release frees all resources. Both are
// safe to call repeatedly and in either order.
type Engine interface {
	Play()
	Stop()
	Release()

	// Subscribe registers fn for lifecycle events. Engines support a
	// single subscriber; subscribing again replaces the previous one.
	// fn may be invoked from arbitrary goroutines.
	Subscribe(fn func(Event)) *Subscription
}

// Subscription is a handle to an engine event registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel in a handle whose Unsubscribe runs it at
// most once. Engines hand these out from Subscribe.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe detaches the callback. Safe on a nil subscription and
// safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Factory constructs engines. New returns an error when the engine
// cannot even be created, for example when the URL names a backend
// that does not understand it.
type Factory interface {
	New(rawURL string) (Engine, error)
}
