// ABOUTME: Shared audio output device for the oto backend
// ABOUTME: oto supports one context per process, created lazily here
package engine

import (
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

const (
	outputSampleRate = 44100
	outputChannels   = 2
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// outputContext returns the process-wide oto context, creating it on
// first use. Streams with other sample rates are resampled to match.
func outputContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   outputSampleRate,
			ChannelCount: outputChannels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx

		log.Debug().Int("sample_rate", outputSampleRate).Int("channels", outputChannels).
			Msg("audio output initialized")
	})
	return otoCtx, otoErr
}
