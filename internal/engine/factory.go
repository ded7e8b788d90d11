// ABOUTME: Engine construction and backend selection
// ABOUTME: Routes URLs by scheme to the oto, beep or tone engines
package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// Selectable playback backends for http(s) URLs.
const (
	BackendOto  = "oto"
	BackendBeep = "beep"
)

// Factory builds one engine per playback attempt.
type Factory struct {
	backend string
}

// NewFactory selects the backend used for http(s) URLs. An empty name
// means BackendOto.
func NewFactory(backend string) (*Factory, error) {
	switch backend {
	case "":
		backend = BackendOto
	case BackendOto, BackendBeep:
	default:
		return nil, fmt.Errorf("unknown engine backend %q (available: %s, %s)", backend, BackendOto, BackendBeep)
	}
	return &Factory{backend: backend}, nil
}

// Backend returns the selected backend name.
func (f *Factory) Backend() string {
	return f.backend
}

// New builds an engine for rawURL, routing by scheme. Construction does
// not touch the network; connection failures surface later as engine
// error events.
func (f *Factory) New(rawURL string) (probe.Engine, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &probe.EngineError{Kind: "construction", Message: "parsing URL failed", Cause: err}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if f.backend == BackendBeep {
			return newBeepEngine(rawURL), nil
		}
		return newHTTPEngine(rawURL), nil
	case "tone":
		return newToneEngine(rawURL)
	default:
		return nil, &probe.EngineError{
			Kind:    "construction",
			Message: fmt.Sprintf("no engine for scheme %q", u.Scheme),
		}
	}
}
