// ABOUTME: Application orchestration wiring loop, controller and surfaces
// ABOUTME: Runs the TUI by default, or headless with signal handling
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamprobe/streamprobe-go/internal/api"
	"github.com/streamprobe/streamprobe-go/internal/engine"
	"github.com/streamprobe/streamprobe-go/internal/ui"
	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// DefaultStreamURL is the public test stream preloaded into the URL field.
const DefaultStreamURL = "https://streams.radiomast.io/ref-128k-mp3-stereo"

// Config holds application configuration.
type Config struct {
	// URL is the initial value of the URL field. Empty means
	// DefaultStreamURL.
	URL string
	// Backend selects the playback backend for http(s) URLs.
	Backend string
	// Listen is the control API address (host:port). Empty disables the
	// API.
	Listen string
	// NoTUI runs headless: status transitions go to the logger and the
	// app stops on SIGINT/SIGTERM.
	NoTUI bool
	// PlayOnStart begins playback of URL immediately. Implied when
	// running headless, since there is no keyboard to press Play on.
	PlayOnStart bool
	// Logger receives the developer log.
	Logger zerolog.Logger
}

// App wires the run loop, session controller, engine factory and the
// user-facing surfaces together.
type App struct {
	cfg    Config
	logger zerolog.Logger

	loop *probe.Loop
	ctrl *probe.Controller
	tui  *ui.TUI
	hub  *api.Hub
	srv  *api.Server

	// loop goroutine only
	lastEcho probe.Status
}

// New builds the application from cfg. Nothing runs until Run.
func New(cfg Config) (*App, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}

	factory, err := engine.NewFactory(cfg.Backend)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: cfg.Logger,
		loop:   probe.NewLoop(),
	}

	if !cfg.NoTUI {
		a.tui = ui.New()
	}
	if cfg.Listen != "" {
		a.hub = api.NewHub()
	}

	ctrl, err := probe.New(probe.Config{
		Factory:  factory,
		Loop:     a.loop,
		OnChange: a.fanOut,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.ctrl = ctrl

	if a.hub != nil {
		a.srv = api.NewServer(cfg.Listen, ctrl, a.hub)
	}

	return a, nil
}

// Run starts everything and blocks until the user quits the TUI or, in
// headless mode, a shutdown signal arrives.
func (a *App) Run() error {
	go a.loop.Run()

	if a.srv != nil {
		go func() {
			if err := a.srv.Start(); err != nil {
				a.logger.Error().Err(err).Msg("control API failed")
			}
		}()
	}

	if a.cfg.PlayOnStart || a.tui == nil {
		a.ctrl.Play(a.cfg.URL)
	}

	var runErr error
	if a.tui != nil {
		runErr = a.tui.Run(ui.Commands{Play: a.ctrl.Play, Stop: a.ctrl.Stop}, a.cfg.URL)
	} else {
		a.waitForSignal()
	}

	a.shutdown()
	return runErr
}

// fanOut delivers each snapshot to every attached surface. Runs on the
// loop, so deliveries arrive in mutation order.
func (a *App) fanOut(snap probe.Snapshot) {
	if a.tui != nil {
		a.tui.Push(snap)
	} else {
		a.echo(snap)
	}
	if a.hub != nil {
		a.hub.Broadcast(snap)
	}
}

// echo logs status transitions in headless mode, where no TUI shows them.
func (a *App) echo(snap probe.Snapshot) {
	if snap.Status == a.lastEcho {
		return
	}
	a.lastEcho = snap.Status

	ev := a.logger.Info().Str("state", snap.Status.State.String())
	if snap.Status.Message != "" {
		ev = ev.Str("message", snap.Status.Message)
	}
	if snap.URL != "" {
		ev = ev.Str("url", snap.URL)
	}
	ev.Msg("status change")
}

func (a *App) waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
}

func (a *App) shutdown() {
	a.ctrl.Close()

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("control API shutdown")
		}
	}

	a.loop.Close()
	a.logger.Info().Msg("probe stopped")
}
