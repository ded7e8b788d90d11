// ABOUTME: HTTP server lifecycle around the control API
// ABOUTME: Listens, serves and shuts down cleanly with the app
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// Server hosts the control API and event feed on one listener.
type Server struct {
	http *http.Server
	hub  *Hub
}

// NewServer builds the server for listen (host:port). The hub must be
// the same one receiving controller snapshots.
func NewServer(listen string, ctrl *probe.Controller, hub *Hub) *Server {
	a := NewAPI(ctrl, hub)
	return &Server{
		http: &http.Server{
			Addr:              listen,
			Handler:           SetupRouter(a),
			ReadHeaderTimeout: 5 * time.Second,
		},
		hub: hub,
	}
}

// Start serves until Shutdown. It blocks; run it on its own goroutine.
func (s *Server) Start() error {
	log.Info().Str("listen", s.http.Addr).Msg("control API listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown disconnects event clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}
