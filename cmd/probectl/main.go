// ABOUTME: Command-line client for the streamprobe control API
// ABOUTME: play/stop/status/log commands plus a live websocket tail
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var addr = flag.String("addr", "127.0.0.1:8934", "Control API address (host:port)")

var client = &http.Client{Timeout: 10 * time.Second}

func usage() {
	fmt.Fprint(os.Stderr, `usage: probectl [-addr host:port] <command>

commands:
  play <url>   start playback of a stream URL
  stop         stop playback
  status       print the current playback status
  log          print the diagnostic log
  tail         follow live state snapshots until interrupted
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	var err error
	switch args[0] {
	case "play":
		if len(args) != 2 {
			usage()
		}
		err = play(args[1])
	case "stop":
		err = post("/api/stop", nil)
	case "status":
		err = status()
	case "log":
		err = printLog()
	case "tail":
		err = tail()
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "probectl: %v\n", err)
		os.Exit(1)
	}
}

func play(streamURL string) error {
	body, err := json.Marshal(map[string]string{"url": streamURL})
	if err != nil {
		return err
	}
	return post("/api/play", body)
}

// post sends a command and expects it to be accepted.
func post(path string, body []byte) error {
	resp, err := client.Post("http://"+*addr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}

	fmt.Println("accepted")
	return nil
}

func get(path string, out interface{}) error {
	resp, err := client.Get("http://" + *addr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func status() error {
	var st struct {
		State     string `json:"state"`
		Message   string `json:"message"`
		URL       string `json:"url"`
		SessionID string `json:"session_id"`
		LogLen    int    `json:"log_len"`
	}
	if err := get("/api/status", &st); err != nil {
		return err
	}

	fmt.Printf("state:   %s\n", st.State)
	if st.Message != "" {
		fmt.Printf("message: %s\n", st.Message)
	}
	if st.URL != "" {
		fmt.Printf("url:     %s\n", st.URL)
	}
	if st.SessionID != "" {
		fmt.Printf("session: %s\n", st.SessionID)
	}
	fmt.Printf("log:     %d entries\n", st.LogLen)
	return nil
}

func printLog() error {
	var lg struct {
		Count   int      `json:"count"`
		Entries []string `json:"entries"`
	}
	if err := get("/api/log", &lg); err != nil {
		return err
	}

	for _, entry := range lg.Entries {
		fmt.Println(entry)
	}
	return nil
}

// snapshotEvent mirrors the event feed frame.
type snapshotEvent struct {
	Type   string `json:"type"`
	Status struct {
		State   string `json:"state"`
		Message string `json:"message"`
	} `json:"status"`
	URL     string   `json:"url"`
	Entries []string `json:"log"`
}

// tail follows the event feed, printing new log entries as they appear
// and status transitions in between.
func tail() error {
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/api/events"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", u.String(), err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}()

	printed := 0
	lastStatus := ""
	for {
		var ev snapshotEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		// A shorter log means a new session cleared it.
		if len(ev.Entries) < printed {
			printed = 0
		}
		for ; printed < len(ev.Entries); printed++ {
			fmt.Println(ev.Entries[printed])
		}

		st := ev.Status.State
		if ev.Status.Message != "" {
			st += ": " + ev.Status.Message
		}
		if st != lastStatus {
			fmt.Printf("-- %s\n", st)
			lastStatus = st
		}
	}
}
