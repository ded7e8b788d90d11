// ABOUTME: WebSocket hub streaming state snapshots to connected clients
// ABOUTME: Slow clients lose updates, never block the session
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// StatusBody mirrors probe.Status on the wire.
type StatusBody struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// SnapshotEvent is one message on the event feed. Every message carries
// the full state, so clients never need to reconcile deltas.
type SnapshotEvent struct {
	Type      string     `json:"type"`
	Status    StatusBody `json:"status"`
	URL       string     `json:"url,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Entries   []string   `json:"log"`
}

func snapshotEvent(snap probe.Snapshot) SnapshotEvent {
	entries := snap.Entries
	if entries == nil {
		entries = []string{}
	}
	return SnapshotEvent{
		Type: "snapshot",
		Status: StatusBody{
			State:   snap.Status.State.String(),
			Message: snap.Status.Message,
		},
		URL:       snap.URL,
		SessionID: snap.SessionID,
		Entries:   entries,
	}
}

type hubClient struct {
	conn *websocket.Conn
	send chan SnapshotEvent
}

// Hub fans state snapshots out to WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    *SnapshotEvent
	closed  bool
}

// NewHub creates an empty hub. The probe is a local debugging tool, so
// any origin may connect.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// Broadcast queues snap to every connected client. A client whose send
// buffer is full misses this update; the next one carries full state
// anyway.
func (h *Hub) Broadcast(snap probe.Snapshot) {
	ev := snapshotEvent(snap)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &ev
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			log.Debug().Msg("event client send buffer full, dropping update")
		}
	}
}

// ClientCount returns the number of connected event clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and services the client until it leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan SnapshotEvent, 16)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.send <- *h.last // buffered and empty, cannot block
	}
	h.mu.Unlock()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("event client connected")

	go h.writer(client)
	h.reader(client)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}

// reader consumes inbound frames so pongs and closes are processed. The
// feed itself is one-way.
func (h *Hub) reader(client *hubClient) {
	defer h.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("event client read error")
			}
			return
		}
	}
}

func (h *Hub) writer(client *hubClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case ev, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// drop removes the client exactly once; the send channel close stops
// its writer.
func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	client.conn.Close()
	if ok {
		log.Debug().Msg("event client disconnected")
	}
}
