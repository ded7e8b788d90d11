// ABOUTME: Synthetic tone engine for checking the output path offline
// ABOUTME: tone:440 plays a 440Hz sine without touching the network
package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

const (
	minToneHz = 1
	maxToneHz = 20000
)

// ToneEngine plays an endless sine tone through the oto device. It
// exists so the audio output can be verified with no stream involved.
type ToneEngine struct {
	freq   float64
	notify notifier

	mu       sync.Mutex
	once     sync.Once
	player   otoPlayer
	released bool
}

// newToneEngine parses tone:FREQ. A malformed or out-of-range frequency
// fails construction, before any playback resources exist. An empty
// frequency means 440.
func newToneEngine(rawURL string) (*ToneEngine, error) {
	spec := rawURL
	if i := strings.Index(spec, ":"); i >= 0 {
		spec = spec[i+1:]
	}
	spec = strings.TrimPrefix(spec, "//")
	if spec == "" {
		return &ToneEngine{freq: 440}, nil
	}
	freq, err := strconv.ParseFloat(spec, 64)
	if err != nil {
		return nil, &probe.EngineError{
			Kind:    "construction",
			Message: fmt.Sprintf("tone frequency %q is not a number", spec),
			Cause:   err,
		}
	}
	if freq < minToneHz || freq > maxToneHz {
		return nil, &probe.EngineError{
			Kind:    "construction",
			Message: fmt.Sprintf("tone frequency %g out of range (%d-%d Hz)", freq, minToneHz, maxToneHz),
		}
	}
	return &ToneEngine{freq: freq}, nil
}

func (e *ToneEngine) Subscribe(fn func(probe.Event)) *probe.Subscription {
	return e.notify.Subscribe(fn)
}

func (e *ToneEngine) Play() {
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

func (e *ToneEngine) Stop() {
	e.mu.Lock()
	p := e.player
	e.mu.Unlock()
	if p != nil {
		p.Pause()
	}
}

func (e *ToneEngine) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	p := e.player
	e.mu.Unlock()

	if p != nil {
		p.Close()
	}
	log.Debug().Float64("freq", e.freq).Msg("tone engine released")
}

func (e *ToneEngine) run() {
	e.notify.emit(probe.Event{Type: probe.EventBuffering})

	octx, err := outputContext()
	if err != nil {
		e.mu.Lock()
		released := e.released
		e.mu.Unlock()
		if released {
			return
		}
		e.notify.emitError(&probe.EngineError{Kind: "output", Message: "opening audio output failed", Cause: err})
		return
	}

	player := octx.NewPlayer(&toneReader{freq: e.freq})

	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		player.Close()
		return
	}
	e.player = player
	e.mu.Unlock()

	player.Play()
	e.notify.emit(probe.Event{Type: probe.EventReady, Info: &probe.StreamInfo{
		SampleRate: outputSampleRate,
		Channels:   outputChannels,
		Name:       fmt.Sprintf("%g Hz test tone", e.freq),
	}})
}

// toneReader produces an endless interleaved stereo sine at half scale.
type toneReader struct {
	freq  float64
	index uint64
}

func (t *toneReader) Read(p []byte) (int, error) {
	frames := len(p) / 4
	for i := 0; i < frames; i++ {
		at := float64(t.index+uint64(i)) / float64(outputSampleRate)
		v := int16(math.Sin(2*math.Pi*t.freq*at) * 32767.0 * 0.5)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(v))
	}
	t.index += uint64(frames)
	return frames * 4, nil
}
