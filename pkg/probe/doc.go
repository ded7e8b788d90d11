// ABOUTME: High-level playback probe library API
// ABOUTME: Session controller, diagnostic log, and the media engine contract
// Package probe implements the playback-session state machine behind
// streamprobe: a controller that owns one playback attempt at a time,
// translates asynchronous media-engine events into status transitions,
// and records every lifecycle event in an append-only diagnostic log.
//
// The controller never performs network or audio work itself; it drives
// an Engine supplied by a Factory. All state mutation happens on a
// single Loop, so observers always see consistent snapshots no matter
// which goroutine an engine delivers its events on.
//
// Example:
//
//	loop := probe.NewLoop()
//	go loop.Run()
//	ctrl, err := probe.New(probe.Config{
//	    Factory: myFactory,
//	    Loop:    loop,
//	    OnChange: func(s probe.Snapshot) {
//	        fmt.Println(s.Status)
//	    },
//	})
//	ctrl.Play("https://streams.radiomast.io/ref-128k-mp3-stereo")
package probe
