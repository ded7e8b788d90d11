// ABOUTME: Default playback engine, HTTP MP3 stream through oto
// ABOUTME: One engine per attempt; released engines never come back
package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// HTTPEngine streams an MP3 URL through the shared oto output device.
// The pipeline is body -> ICY strip -> MP3 decode -> resample -> device,
// pulled by oto's own reader goroutine.
type HTTPEngine struct {
	url    string
	notify notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	once   sync.Once
	body   io.Closer
	player otoPlayer

	released bool
}

// otoPlayer is the slice of *oto.Player the engine drives.
type otoPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

func newHTTPEngine(rawURL string) *HTTPEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPEngine{url: rawURL, ctx: ctx, cancel: cancel}
}

func (e *HTTPEngine) Subscribe(fn func(probe.Event)) *probe.Subscription {
	return e.notify.Subscribe(fn)
}

// Play starts the pipeline on first call and resumes paused output on
// later ones.
func (e *HTTPEngine) Play() {
	started := false
	e.once.Do(func() {
		started = true
		go e.run()
	})
	if started {
		return
	}

	e.mu.Lock()
	p := e.player
	released := e.released
	e.mu.Unlock()
	if p != nil && !released && !p.IsPlaying() {
		p.Play()
	}
}

// Stop pauses audible output. The connection stays open until Release.
func (e *HTTPEngine) Stop() {
	e.mu.Lock()
	p := e.player
	e.mu.Unlock()
	if p != nil {
		p.Pause()
	}
}

// Release tears the pipeline down. Idempotent; the engine is dead
// afterwards.
func (e *HTTPEngine) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	body := e.body
	p := e.player
	e.mu.Unlock()

	e.cancel()
	if body != nil {
		body.Close()
	}
	if p != nil {
		p.Close()
	}
	log.Debug().Str("url", e.url).Msg("engine released")
}

func (e *HTTPEngine) run() {
	log.Debug().Str("url", e.url).Msg("engine pipeline starting")
	e.notify.emit(probe.Event{Type: probe.EventBuffering})

	resp, perr := openStream(e.ctx, e.url)
	if perr != nil {
		e.fail(perr)
		return
	}
	if !e.adoptBody(resp.Body) {
		resp.Body.Close()
		return
	}

	info := streamInfoFromHeaders(resp.Header)
	icy := newICYReader(resp.Body, metaInterval(resp.Header), func(title string) {
		e.notify.emit(probe.Event{Type: probe.EventMetadata, Title: title})
	})

	dec, err := mp3.NewDecoder(icy)
	if err != nil {
		e.fail(&probe.EngineError{Kind: "decode", Message: "decoding MP3 stream failed", Cause: err})
		return
	}
	info.SampleRate = dec.SampleRate()
	info.Channels = outputChannels

	octx, err := outputContext()
	if err != nil {
		e.fail(&probe.EngineError{Kind: "output", Message: "opening audio output failed", Cause: err})
		return
	}

	var src io.Reader = dec
	if dec.SampleRate() != outputSampleRate {
		log.Debug().Int("from", dec.SampleRate()).Int("to", outputSampleRate).Msg("resampling stream")
		src = newResampleReader(dec, dec.SampleRate(), outputSampleRate)
	}
	tracked := &trackingReader{r: src}

	player := octx.NewPlayer(tracked)
	if !e.adoptPlayer(player) {
		player.Close()
		return
	}

	player.Play()
	e.notify.emit(probe.Event{Type: probe.EventReady, Info: info})

	e.watch(tracked, player)
}

// watch waits for the pipeline to end or fail and reports which.
func (e *HTTPEngine) watch(tracked *trackingReader, player otoPlayer) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			err := tracked.terminal()
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) {
				e.fail(&probe.EngineError{Kind: "stream", Message: "reading stream failed", Cause: err})
				return
			}

			// Let the device drain what it has buffered.
			for player.IsPlaying() {
				select {
				case <-e.ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
			}
			e.notify.emit(probe.Event{Type: probe.EventEnded})
			return
		}
	}
}

// fail reports err unless the engine was released, in which case the
// failure is an expected consequence of teardown.
func (e *HTTPEngine) fail(err *probe.EngineError) {
	if e.ctx.Err() != nil {
		return
	}
	log.Debug().Err(err).Str("url", e.url).Msg("engine failed")
	e.notify.emitError(err)
}

func (e *HTTPEngine) adoptBody(body io.Closer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return false
	}
	e.body = body
	return true
}

func (e *HTTPEngine) adoptPlayer(p otoPlayer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return false
	}
	e.player = p
	return true
}

// trackingReader remembers the first error its source returned so the
// watch loop can tell a clean end from a failure.
type trackingReader struct {
	r io.Reader

	mu  sync.Mutex
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
	return n, err
}

func (t *trackingReader) terminal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
