// ABOUTME: Entry point for the streamprobe stream debugging tool
// ABOUTME: Parses CLI flags, sets up logging and starts the application
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/internal/app"
	"github.com/streamprobe/streamprobe-go/internal/version"
)

var (
	streamURL   = flag.String("url", app.DefaultStreamURL, "Initial stream URL")
	backend     = flag.String("engine", "oto", "Playback backend for http(s) URLs (oto or beep)")
	listen      = flag.String("listen", "", "Control API address (host:port), empty disables it")
	noTUI       = flag.Bool("no-tui", false, "Disable the TUI and run headless")
	playOnStart = flag.Bool("play-on-start", false, "Start playback immediately")
	logFile     = flag.String("log-file", "streamprobe.log", "Developer log file path")
	debug       = flag.Bool("debug", false, "Log at debug level")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	// The TUI owns the terminal, so the developer log goes to the file.
	// Headless mode mirrors it to stderr for interactive debugging.
	var out io.Writer = f
	if *noTUI {
		out = io.MultiWriter(f, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	a, err := app.New(app.Config{
		URL:         *streamURL,
		Backend:     *backend,
		Listen:      *listen,
		NoTUI:       *noTUI,
		PlayOnStart: *playOnStart,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Info().
		Str("version", version.Version).
		Str("backend", *backend).
		Msg("starting streamprobe")

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
