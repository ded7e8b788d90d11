// ABOUTME: Playback session controller driving engines and the diagnostic log
// ABOUTME: All state transitions run on the Loop so observers see them in order
package probe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config carries the controller dependencies.
type Config struct {
	// Factory builds an engine per playback attempt. Required.
	Factory Factory
	// Loop is the run loop all mutations execute on. Required. The
	// controller does not own the loop; closing it is the caller's job.
	Loop *Loop
	// OnChange, when set, is invoked on the loop after every state or
	// log change with a fresh snapshot.
	OnChange func(Snapshot)
	// Logger receives operational logging. The zero value is silent.
	Logger zerolog.Logger
}

// Snapshot is a point-in-time copy of the controller state. Entries is
// owned by the receiver and safe to retain.
type Snapshot struct {
	Status    Status
	URL       string
	SessionID string
	Entries   []string
}

// session ties one engine handle to the play request that created it.
// Events carry their session so late callbacks from a replaced engine
// can be told apart from live ones.
type session struct {
	id     string
	url    string
	engine Engine
	sub    *Subscription
}

// Controller owns the playback session state machine: one live engine
// handle at most, a status, and the per-session diagnostic log.
type Controller struct {
	factory  Factory
	loop     *Loop
	onChange func(Snapshot)
	logger   zerolog.Logger

	log *Log

	mu        sync.RWMutex
	status    Status
	targetURL string
	sessionID string

	// loop goroutine only
	current *session
	closed  bool
}

// New validates cfg and returns a controller in the Idle state.
func New(cfg Config) (*Controller, error) {
	if cfg.Factory == nil {
		return nil, errors.New("engine factory is required")
	}
	if cfg.Loop == nil {
		return nil, errors.New("run loop is required")
	}
	return &Controller{
		factory:  cfg.Factory,
		loop:     cfg.Loop,
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
		log:      NewLog(),
		status:   Status{State: StateIdle},
	}, nil
}

// Play starts a new playback session for rawURL, replacing any session
// in progress. Invalid input is reported through the status and the
// diagnostic log; Play itself never fails.
func (c *Controller) Play(rawURL string) {
	c.loop.Dispatch(func() { c.playOnLoop(rawURL) })
}

// Stop ends the current session and returns the controller to Idle.
// Safe to call with no session running.
func (c *Controller) Stop() {
	c.loop.Dispatch(c.stopOnLoop)
}

// Close releases the current engine and ignores further commands.
// Idempotent. The loop itself stays usable.
func (c *Controller) Close() {
	c.loop.Dispatch(c.closeOnLoop)
}

// Status returns the current playback status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Entries returns a copy of the diagnostic log.
func (c *Controller) Entries() []string {
	return c.log.Entries()
}

// Snapshot returns the full controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	st := c.status
	u := c.targetURL
	id := c.sessionID
	c.mu.RUnlock()
	return Snapshot{Status: st, URL: u, SessionID: id, Entries: c.log.Entries()}
}

func (c *Controller) playOnLoop(rawURL string) {
	if c.closed {
		return
	}

	target := strings.TrimSpace(rawURL)
	if reason := validateURL(target); reason != "" {
		c.logger.Warn().Str("url", rawURL).Str("reason", reason).Msg("rejecting play request")
		c.setStatus(Status{State: StateError, Message: "Invalid URL: " + reason})
		c.log.Append("Invalid URL: " + reason)
		c.notify()
		return
	}

	id := uuid.NewString()
	c.logger.Info().Str("url", target).Str("session", id).Msg("starting playback")

	c.log.Clear()
	c.log.Append("New playback started")
	c.log.Append("URL: " + target)
	c.setStatus(Status{State: StateLoading})
	c.setTarget(target, id)

	c.releaseCurrent()

	eng, err := c.factory.New(target)
	if err != nil {
		var ee *EngineError
		if !errors.As(err, &ee) {
			ee = &EngineError{Kind: "construction", Message: err.Error()}
		}
		c.logger.Error().Err(err).Str("url", target).Msg("engine construction failed")
		c.setStatus(Status{State: StateError, Message: ee.Message})
		c.log.Append(formatEngineError(ee))
		c.setTarget(target, "")
		c.notify()
		return
	}

	sess := &session{id: id, url: target, engine: eng}
	sess.sub = eng.Subscribe(func(ev Event) { c.handleEvent(sess, ev) })
	c.current = sess

	eng.Play()
	c.notify()
}

func (c *Controller) stopOnLoop() {
	if c.closed {
		return
	}
	c.logger.Info().Msg("stop requested")
	c.log.Append("Stop triggered")
	c.releaseCurrent()
	c.setStatus(Status{State: StateIdle})
	c.setTarget("", "")
	c.notify()
}

func (c *Controller) closeOnLoop() {
	if c.closed {
		return
	}
	c.closed = true
	c.releaseCurrent()
}

// handleEvent hops engine callbacks onto the loop, discarding any that
// belong to a session no longer current.
func (c *Controller) handleEvent(sess *session, ev Event) {
	c.loop.Dispatch(func() {
		if c.current != sess {
			c.logger.Debug().Str("event", string(ev.Type)).Str("session", sess.id).Msg("discarding stale engine event")
			return
		}
		c.applyEvent(sess, ev)
	})
}

func (c *Controller) applyEvent(sess *session, ev Event) {
	c.logger.Debug().Str("event", string(ev.Type)).Str("session", sess.id).Msg("engine event")

	switch ev.Type {
	case EventBuffering:
		c.setStatus(Status{State: StateLoading})
		c.log.Append("Buffering...")

	case EventReady:
		c.setStatus(Status{State: StatePlaying})
		c.log.Append("Ready, playing")
		if ev.Info != nil {
			if line := streamInfoLine(ev.Info); line != "" {
				c.log.Append(line)
			}
		}
		// Some backends begin output on their own once buffered, some
		// wait for an explicit command. Play is idempotent, so issue it
		// unconditionally.
		sess.engine.Play()

	case EventMetadata:
		if ev.Title != "" {
			c.log.Append("Now playing: " + ev.Title)
		}

	case EventEnded:
		c.log.Append("Playback ended")

	case EventError:
		ee := ev.Err
		if ee == nil {
			ee = &EngineError{Kind: "stream", Message: "unknown engine error"}
		}
		c.setStatus(Status{State: StateError, Message: ee.Message})
		c.log.Append(formatEngineError(ee))
	}

	c.notify()
}

// releaseCurrent detaches and frees the live engine handle, if any.
func (c *Controller) releaseCurrent() {
	if c.current == nil {
		return
	}
	c.current.sub.Unsubscribe()
	c.current.engine.Stop()
	c.current.engine.Release()
	c.current = nil
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) setTarget(url, id string) {
	c.mu.Lock()
	c.targetURL = url
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}

// validateURL returns a rejection reason, or "" when raw is playable.
func validateURL(raw string) string {
	if raw == "" {
		return "URL is blank"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "not a valid URL"
	}
	if u.Scheme == "" {
		return "missing scheme"
	}
	return ""
}

// formatEngineError renders err as a multi-line diagnostic entry. The
// message is never truncated; UIs wrap long lines instead.
func formatEngineError(err *EngineError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Engine error (%s)\nmessage: %s", err.Kind, err.Message)
	if err.Cause != nil {
		fmt.Fprintf(&b, "\ncause: %v", err.Cause)
	}
	return b.String()
}

func streamInfoLine(info *StreamInfo) string {
	var b strings.Builder
	if info.Name != "" {
		b.WriteString(info.Name)
	}
	if info.ContentType != "" {
		fmt.Fprintf(&b, " [%s]", info.ContentType)
	}
	if info.BitrateKbps > 0 {
		fmt.Fprintf(&b, " %d kbps", info.BitrateKbps)
	}
	if info.SampleRate > 0 {
		fmt.Fprintf(&b, " %d Hz", info.SampleRate)
	}
	if info.Channels > 0 {
		fmt.Fprintf(&b, " %dch", info.Channels)
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return ""
	}
	return "Stream: " + s
}
