// ABOUTME: Alternative playback engine built on the beep speaker stack
// ABOUTME: Useful for comparing device behavior against the oto backend
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

const beepSampleRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

// initSpeaker sets the process-wide beep speaker up once, at a fixed
// rate. Streams at other rates go through beep's resampler.
func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(beepSampleRate, beepSampleRate.N(250*time.Millisecond))
	})
	return speakerErr
}

// BeepEngine streams an MP3 URL through the beep mixer.
type BeepEngine struct {
	url    string
	notify notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	once     sync.Once
	body     io.Closer
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl

	released bool
}

func newBeepEngine(rawURL string) *BeepEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &BeepEngine{url: rawURL, ctx: ctx, cancel: cancel}
}

func (e *BeepEngine) Subscribe(fn func(probe.Event)) *probe.Subscription {
	return e.notify.Subscribe(fn)
}

// Play starts the pipeline on first call and unpauses on later ones.
func (e *BeepEngine) Play() {
	started := false
	e.once.Do(func() {
		started = true
		go e.run()
	})
	if started {
		return
	}

	e.mu.Lock()
	ctrl := e.ctrl
	released := e.released
	e.mu.Unlock()
	if ctrl != nil && !released {
		speaker.Lock()
		ctrl.Paused = false
		speaker.Unlock()
	}
}

// Stop pauses audible output.
func (e *BeepEngine) Stop() {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl != nil {
		speaker.Lock()
		ctrl.Paused = true
		speaker.Unlock()
	}
}

// Release empties the mixer and tears the pipeline down. With a single
// live engine at a time, clearing the speaker only removes our stream.
func (e *BeepEngine) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	body := e.body
	streamer := e.streamer
	e.mu.Unlock()

	e.cancel()
	speaker.Clear()
	if streamer != nil {
		streamer.Close()
	}
	if body != nil {
		body.Close()
	}
	log.Debug().Str("url", e.url).Msg("engine released")
}

func (e *BeepEngine) run() {
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

	streamer, format, err := mp3.Decode(&streamBody{Reader: icy, Closer: resp.Body})
	if err != nil {
		e.fail(&probe.EngineError{Kind: "decode", Message: "decoding MP3 stream failed", Cause: err})
		return
	}
	info.SampleRate = int(format.SampleRate)
	info.Channels = format.NumChannels

	if err := initSpeaker(); err != nil {
		streamer.Close()
		e.fail(&probe.EngineError{Kind: "output", Message: "opening audio output failed", Cause: err})
		return
	}

	ctrl := &beep.Ctrl{Streamer: streamer}
	var out beep.Streamer = ctrl
	if format.SampleRate != beepSampleRate {
		log.Debug().Int("from", int(format.SampleRate)).Int("to", int(beepSampleRate)).Msg("resampling stream")
		out = beep.Resample(4, format.SampleRate, beepSampleRate, ctrl)
	}

	if !e.adopt(streamer, ctrl) {
		streamer.Close()
		return
	}

	speaker.Play(beep.Seq(out, beep.Callback(func() {
		e.finished(streamer)
	})))
	e.notify.emit(probe.Event{Type: probe.EventReady, Info: info})
}

// finished runs inside the speaker goroutine once the stream drains.
func (e *BeepEngine) finished(streamer beep.StreamSeekCloser) {
	if e.ctx.Err() != nil {
		return
	}
	if err := streamer.Err(); err != nil {
		e.fail(&probe.EngineError{Kind: "stream", Message: "stream playback failed", Cause: err})
		return
	}
	e.notify.emit(probe.Event{Type: probe.EventEnded})
}

func (e *BeepEngine) fail(err *probe.EngineError) {
	if e.ctx.Err() != nil {
		return
	}
	log.Debug().Err(err).Str("url", e.url).Msg("engine failed")
	e.notify.emitError(err)
}

func (e *BeepEngine) adoptBody(body io.Closer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return false
	}
	e.body = body
	return true
}

func (e *BeepEngine) adopt(streamer beep.StreamSeekCloser, ctrl *beep.Ctrl) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return false
	}
	e.streamer = streamer
	e.ctrl = ctrl
	return true
}

// streamBody pairs the ICY-stripped reader with the network body so the
// decoder's Close reaches the connection.
type streamBody struct {
	io.Reader
	io.Closer
}
