// ABOUTME: Tests for the playback session controller
// ABOUTME: Drives fake engines through the full lifecycle including failures
package probe

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testStreamURL = "https://streams.radiomast.io/ref-128k-mp3-stereo"

// fakeEngine records lifecycle calls and lets the test emit events.
// handler survives Unsubscribe so tests can model a callback that was
// already in flight when the subscription was torn down.
type fakeEngine struct {
	mu           sync.Mutex
	playCalls    int
	stopCalls    int
	releaseCalls int
	unsubCalls   int

	sink    func(Event)
	handler func(Event)
}

func (f *fakeEngine) Play() {
	f.mu.Lock()
	f.playCalls++
	f.mu.Unlock()
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
}

func (f *fakeEngine) Release() {
	f.mu.Lock()
	f.releaseCalls++
	f.mu.Unlock()
}

func (f *fakeEngine) Subscribe(fn func(Event)) *Subscription {
	f.mu.Lock()
	f.sink = fn
	f.handler = fn
	f.mu.Unlock()
	return NewSubscription(func() {
		f.mu.Lock()
		f.sink = nil
		f.unsubCalls++
		f.mu.Unlock()
	})
}

func (f *fakeEngine) emit(ev Event) {
	f.mu.Lock()
	fn := f.sink
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *fakeEngine) emitStale(ev Event) {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *fakeEngine) counts() (play, stop, release, unsub int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls, f.stopCalls, f.releaseCalls, f.unsubCalls
}

// fakeFactory hands out fake engines and records every construction.
type fakeFactory struct {
	mu      sync.Mutex
	calls   int
	urls    []string
	err     error
	engines []*fakeEngine
}

func (f *fakeFactory) New(rawURL string) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	eng := &fakeEngine{}
	f.engines = append(f.engines, eng)
	return eng, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) engine(t *testing.T, i int) *fakeEngine {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.engines) {
		t.Fatalf("engine %d not constructed (have %d)", i, len(f.engines))
	}
	return f.engines[i]
}

type harness struct {
	t       *testing.T
	loop    *Loop
	factory *fakeFactory
	ctrl    *Controller

	mu        sync.Mutex
	snapshots []Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, factory: &fakeFactory{}, loop: NewLoop()}
	ctrl, err := New(Config{
		Factory: h.factory,
		Loop:    h.loop,
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, s)
			h.mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl
	go h.loop.Run()
	t.Cleanup(h.loop.Close)
	return h
}

// flush waits until every command and event dispatched so far has run.
func (h *harness) flush() {
	h.t.Helper()
	done := make(chan struct{})
	h.loop.Dispatch(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("loop did not drain in time")
	}
}

// states returns the status sequence observed through OnChange.
func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, len(h.snapshots))
	for i, s := range h.snapshots {
		out[i] = s.Status.State
	}
	return out
}

func (h *harness) wantEntries(want ...string) {
	h.t.Helper()
	got := h.ctrl.Entries()
	if len(got) != len(want) {
		h.t.Fatalf("log has %d entries %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			h.t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func (h *harness) wantState(want State) {
	h.t.Helper()
	if got := h.ctrl.Status().State; got != want {
		h.t.Errorf("status = %v, want %v", got, want)
	}
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New(Config{Loop: NewLoop()}); err == nil {
		t.Error("expected an error without a factory")
	}
}

func TestNewRequiresLoop(t *testing.T) {
	if _, err := New(Config{Factory: &fakeFactory{}}); err == nil {
		t.Error("expected an error without a loop")
	}
}

func TestNewStartsIdle(t *testing.T) {
	h := newHarness(t)
	h.wantState(StateIdle)
	if n := len(h.ctrl.Entries()); n != 0 {
		t.Errorf("fresh controller has %d log entries, want 0", n)
	}
}

func TestPlayRejectsInvalidURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{"blank", "", "URL is blank"},
		{"whitespace only", "   ", "URL is blank"},
		{"plain words", "not a url", "missing scheme"},
		{"relative path", "streams/ref-128k", "missing scheme"},
		{"unparseable", "::", "not a valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ctrl.Play(tt.url)
			h.flush()

			if got := h.ctrl.Status(); got.State != StateError {
				t.Errorf("status = %v, want error", got.State)
			} else if want := "Invalid URL: " + tt.reason; got.Message != want {
				t.Errorf("status message = %q, want %q", got.Message, want)
			}
			h.wantEntries("Invalid URL: " + tt.reason)
			if n := h.factory.callCount(); n != 0 {
				t.Errorf("factory constructed %d engines, want 0", n)
			}
		})
	}
}

func TestPlayInvalidAppendsExactlyOneEntry(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	before := len(h.ctrl.Entries())

	h.ctrl.Play("not a url")
	h.flush()

	got := h.ctrl.Entries()
	if len(got) != before+1 {
		t.Fatalf("log grew from %d to %d entries, want %d", before, len(got), before+1)
	}
	if got[0] != "New playback started" {
		t.Errorf("earlier entries were cleared: first = %q", got[0])
	}
	h.wantState(StateError)

	// The running session is untouched by the rejected request.
	eng := h.factory.engine(t, 0)
	if _, _, release, unsub := eng.counts(); release != 0 || unsub != 0 {
		t.Errorf("live engine disturbed: release=%d unsub=%d", release, unsub)
	}
	if n := h.factory.callCount(); n != 1 {
		t.Errorf("factory constructed %d engines, want 1", n)
	}
}

func TestPlayHappyPath(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()

	if n := h.factory.callCount(); n != 1 {
		t.Fatalf("factory constructed %d engines, want 1", n)
	}
	if h.factory.urls[0] != testStreamURL {
		t.Errorf("factory got URL %q, want %q", h.factory.urls[0], testStreamURL)
	}
	h.wantState(StateLoading)
	h.wantEntries("New playback started", "URL: "+testStreamURL)

	eng := h.factory.engine(t, 0)
	if play, _, _, _ := eng.counts(); play != 1 {
		t.Errorf("engine Play called %d times after start, want 1", play)
	}

	eng.emit(Event{Type: EventBuffering})
	h.flush()
	h.wantState(StateLoading)

	eng.emit(Event{Type: EventReady})
	h.flush()
	h.wantState(StatePlaying)
	h.wantEntries(
		"New playback started",
		"URL: "+testStreamURL,
		"Buffering...",
		"Ready, playing",
	)

	// Ready re-issues the idempotent play command for backends that do
	// not start on their own.
	if play, _, _, _ := eng.counts(); play != 2 {
		t.Errorf("engine Play called %d times after ready, want 2", play)
	}

	want := []State{StateLoading, StateLoading, StatePlaying}
	got := h.states()
	if len(got) != len(want) {
		t.Fatalf("observed states %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("observed states %v, want %v", got, want)
		}
	}
}

func TestPlayTrimsSurroundingWhitespace(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play("  " + testStreamURL + "\n")
	h.flush()

	if h.factory.urls[0] != testStreamURL {
		t.Errorf("factory got URL %q, want trimmed %q", h.factory.urls[0], testStreamURL)
	}
	h.wantEntries("New playback started", "URL: "+testStreamURL)
}

func TestPlayReplacesPreviousSession(t *testing.T) {
	h := newHarness(t)
	second := "https://example.com/other-stream.mp3"

	h.ctrl.Play(testStreamURL)
	h.flush()
	first := h.factory.engine(t, 0)
	first.emit(Event{Type: EventReady})
	h.flush()

	h.ctrl.Play(second)
	h.flush()

	// Log restarts for the new session.
	h.wantEntries("New playback started", "URL: "+second)
	h.wantState(StateLoading)

	// Only one live handle: the first engine is fully torn down.
	if _, stop, release, unsub := first.counts(); stop != 1 || release != 1 || unsub != 1 {
		t.Errorf("first engine teardown: stop=%d release=%d unsub=%d, want 1/1/1", stop, release, unsub)
	}
	replacement := h.factory.engine(t, 1)
	if _, _, release, _ := replacement.counts(); release != 0 {
		t.Errorf("replacement engine released %d times, want 0", release)
	}
	if n := h.factory.callCount(); n != 2 {
		t.Errorf("factory constructed %d engines, want 2", n)
	}
}

func TestStopWithoutSession(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Stop()
	h.flush()

	h.wantState(StateIdle)
	h.wantEntries("Stop triggered")
	if n := h.factory.callCount(); n != 0 {
		t.Errorf("factory constructed %d engines, want 0", n)
	}
}

func TestStopTearsDownSession(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	h.ctrl.Stop()
	h.flush()

	h.wantState(StateIdle)
	h.wantEntries("New playback started", "URL: "+testStreamURL, "Stop triggered")

	eng := h.factory.engine(t, 0)
	if _, stop, release, unsub := eng.counts(); stop != 1 || release != 1 || unsub != 1 {
		t.Errorf("engine teardown: stop=%d release=%d unsub=%d, want 1/1/1", stop, release, unsub)
	}

	snap := h.ctrl.Snapshot()
	if snap.URL != "" || snap.SessionID != "" {
		t.Errorf("snapshot still carries session: url=%q id=%q", snap.URL, snap.SessionID)
	}
}

func TestStopTwiceReleasesOnce(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	h.ctrl.Stop()
	h.ctrl.Stop()
	h.flush()

	eng := h.factory.engine(t, 0)
	if _, _, release, _ := eng.counts(); release != 1 {
		t.Errorf("engine released %d times, want 1", release)
	}
	h.wantEntries(
		"New playback started",
		"URL: "+testStreamURL,
		"Stop triggered",
		"Stop triggered",
	)
}

func TestStaleEventAfterStopIsDiscarded(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	h.ctrl.Stop()
	h.flush()
	entriesBefore := len(h.ctrl.Entries())

	// A ready callback that was in flight during teardown.
	eng.emitStale(Event{Type: EventReady})
	h.flush()

	h.wantState(StateIdle)
	if n := len(h.ctrl.Entries()); n != entriesBefore {
		t.Errorf("stale event changed the log: %d entries, want %d", n, entriesBefore)
	}
	if play, _, _, _ := eng.counts(); play != 1 {
		t.Errorf("stale ready re-issued play: %d calls, want 1", play)
	}
}

func TestStaleEventAfterReplacementIsDiscarded(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	first := h.factory.engine(t, 0)

	h.ctrl.Play("https://example.com/other-stream.mp3")
	h.flush()

	first.emitStale(Event{Type: EventError, Err: &EngineError{Kind: "stream", Message: "stream stalled"}})
	h.flush()

	// The old engine's failure must not bleed into the new session.
	h.wantState(StateLoading)
	h.wantEntries("New playback started", "URL: https://example.com/other-stream.mp3")
}

func TestEngineErrorBecomesStatusAndLog(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	eng.emit(Event{Type: EventError, Err: &EngineError{Kind: "http_status", Message: "404 Not Found"}})
	h.flush()

	st := h.ctrl.Status()
	if st.State != StateError {
		t.Fatalf("status = %v, want error", st.State)
	}
	if st.Message != "404 Not Found" {
		t.Errorf("status message = %q, want %q", st.Message, "404 Not Found")
	}

	entries := h.ctrl.Entries()
	last := entries[len(entries)-1]
	if !strings.Contains(last, "404 Not Found") {
		t.Errorf("last entry %q does not contain the engine message", last)
	}
	if !strings.Contains(last, "\n") {
		t.Errorf("engine error entry is single-line: %q", last)
	}

	// Failures are terminal for the session but the handle is kept
	// until the next play or stop.
	if _, _, release, unsub := eng.counts(); release != 0 || unsub != 0 {
		t.Errorf("engine torn down on error: release=%d unsub=%d, want 0/0", release, unsub)
	}
}

func TestEngineErrorCauseChainLogged(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	eng.emit(Event{Type: EventError, Err: &EngineError{
		Kind:    "connect",
		Message: "connecting to stream failed",
		Cause:   errors.New("dial tcp 192.0.2.1:443: i/o timeout"),
	}})
	h.flush()

	entries := h.ctrl.Entries()
	last := entries[len(entries)-1]
	for _, want := range []string{"Engine error (connect)", "connecting to stream failed", "cause: dial tcp 192.0.2.1:443: i/o timeout"} {
		if !strings.Contains(last, want) {
			t.Errorf("error entry %q missing %q", last, want)
		}
	}
	if lines := strings.Split(last, "\n"); len(lines) < 3 {
		t.Errorf("error entry has %d lines, want at least 3", len(lines))
	}
}

func TestPlayAfterErrorStartsClean(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	failed := h.factory.engine(t, 0)
	failed.emit(Event{Type: EventError, Err: &EngineError{Kind: "http_status", Message: "404 Not Found"}})
	h.flush()

	h.ctrl.Play(testStreamURL)
	h.flush()

	h.wantState(StateLoading)
	h.wantEntries("New playback started", "URL: "+testStreamURL)
	if _, _, release, _ := failed.counts(); release != 1 {
		t.Errorf("failed engine released %d times, want 1", release)
	}
	if n := h.factory.callCount(); n != 2 {
		t.Errorf("factory constructed %d engines, want 2", n)
	}
}

func TestConstructionFailure(t *testing.T) {
	h := newHarness(t)
	h.factory.err = errors.New("no audio output device")

	h.ctrl.Play(testStreamURL)
	h.flush()

	st := h.ctrl.Status()
	if st.State != StateError {
		t.Fatalf("status = %v, want error", st.State)
	}
	if st.Message != "no audio output device" {
		t.Errorf("status message = %q", st.Message)
	}

	entries := h.ctrl.Entries()
	if len(entries) != 3 {
		t.Fatalf("log has %d entries %v, want 3", len(entries), entries)
	}
	last := entries[len(entries)-1]
	if !strings.Contains(last, "Engine error (construction)") || !strings.Contains(last, "no audio output device") {
		t.Errorf("construction error entry = %q", last)
	}

	if snap := h.ctrl.Snapshot(); snap.SessionID != "" {
		t.Errorf("dead session kept an id: %q", snap.SessionID)
	}
}

func TestConstructionFailureKeepsEngineErrorKind(t *testing.T) {
	h := newHarness(t)
	h.factory.err = &EngineError{
		Kind:    "output",
		Message: "opening audio device failed",
		Cause:   errors.New("device busy"),
	}

	h.ctrl.Play(testStreamURL)
	h.flush()

	if got := h.ctrl.Status().Message; got != "opening audio device failed" {
		t.Errorf("status message = %q", got)
	}
	entries := h.ctrl.Entries()
	last := entries[len(entries)-1]
	for _, want := range []string{"Engine error (output)", "cause: device busy"} {
		if !strings.Contains(last, want) {
			t.Errorf("error entry %q missing %q", last, want)
		}
	}
}

func TestEndedKeepsStatus(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)
	eng.emit(Event{Type: EventReady})
	h.flush()

	eng.emit(Event{Type: EventEnded})
	h.flush()

	h.wantState(StatePlaying)
	entries := h.ctrl.Entries()
	if last := entries[len(entries)-1]; last != "Playback ended" {
		t.Errorf("last entry = %q, want %q", last, "Playback ended")
	}
}

func TestMetadataLogged(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	eng.emit(Event{Type: EventMetadata, Title: "Morcheeba - The Sea"})
	h.flush()
	entries := h.ctrl.Entries()
	if last := entries[len(entries)-1]; last != "Now playing: Morcheeba - The Sea" {
		t.Errorf("last entry = %q", last)
	}

	before := len(entries)
	eng.emit(Event{Type: EventMetadata})
	h.flush()
	if n := len(h.ctrl.Entries()); n != before {
		t.Errorf("empty metadata title appended an entry")
	}

	h.wantState(StateLoading)
}

func TestReadyLogsStreamInfo(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	eng.emit(Event{Type: EventReady, Info: &StreamInfo{
		Name:        "Reference Streams",
		ContentType: "audio/mpeg",
		BitrateKbps: 128,
		SampleRate:  44100,
		Channels:    2,
	}})
	h.flush()

	entries := h.ctrl.Entries()
	if last := entries[len(entries)-1]; last != "Stream: Reference Streams [audio/mpeg] 128 kbps 44100 Hz 2ch" {
		t.Errorf("stream info entry = %q", last)
	}
}

func TestEventsFromEngineGoroutine(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.emit(Event{Type: EventBuffering})
		eng.emit(Event{Type: EventReady})
	}()
	wg.Wait()
	h.flush()

	h.wantState(StatePlaying)
}

func TestCloseIgnoresFurtherCommands(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()
	eng := h.factory.engine(t, 0)

	h.ctrl.Close()
	h.ctrl.Close()
	h.ctrl.Play(testStreamURL)
	h.ctrl.Stop()
	h.flush()

	if _, _, release, _ := eng.counts(); release != 1 {
		t.Errorf("engine released %d times, want 1", release)
	}
	if n := h.factory.callCount(); n != 1 {
		t.Errorf("factory constructed %d engines after Close, want 1", n)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Play(testStreamURL)
	h.flush()

	snap := h.ctrl.Snapshot()
	if snap.URL != testStreamURL {
		t.Errorf("snapshot URL = %q", snap.URL)
	}
	if snap.SessionID == "" {
		t.Error("snapshot has no session id")
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap.Entries))
	}

	snap.Entries[0] = "mutated"
	if got := h.ctrl.Entries(); got[0] != "New playback started" {
		t.Errorf("controller log changed through snapshot: %q", got[0])
	}
}

func TestControllerWithoutOnChange(t *testing.T) {
	loop := NewLoop()
	go loop.Run()
	defer loop.Close()

	factory := &fakeFactory{}
	ctrl, err := New(Config{Factory: factory, Loop: loop, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctrl.Play(testStreamURL)
	ctrl.Stop()

	done := make(chan struct{})
	loop.Dispatch(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain in time")
	}

	if got := ctrl.Status().State; got != StateIdle {
		t.Errorf("status = %v, want idle", got)
	}
}
