package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/upmon/upmon/internal/store"
)

const (
	// snapshotInterval is how often connected clients receive a fleet
	// snapshot.
	snapshotInterval = 5 * time.Second

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For production, check origin properly.
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// SnapshotStore loads the point-in-time fleet state the hub broadcasts.
type SnapshotStore interface {
	FleetSnapshot(ctx context.Context) (*store.FleetSnapshot, error)
}

// Hub owns the set of websocket clients and pushes them a JSON fleet
// snapshot every snapshotInterval. The clients map is touched only from
// Run's goroutine; everything else talks to it over channels.
type Hub struct {
	store    SnapshotStore
	logger   *slog.Logger
	interval time.Duration

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub(st SnapshotStore, logger *slog.Logger) *Hub {
	return &Hub{
		store:      st,
		logger:     logger.With("component", "hub"),
		interval:   snapshotInterval,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run broadcasts snapshots until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.logger.Info("hub stopped")
			return nil
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("websocket client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("websocket client disconnected", "clients", len(h.clients))
			}
		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			h.broadcastSnapshot(ctx)
		}
	}
}

// broadcastSnapshot fans the current fleet state out to every client. A
// client that cannot keep up is dropped rather than allowed to stall the
// rest.
func (h *Hub) broadcastSnapshot(ctx context.Context) {
	snap, err := h.store.FleetSnapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Error("load fleet snapshot", "error", err)
		}
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encode fleet snapshot", "error", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients, c)
			h.logger.Debug("dropped slow websocket client", "clients", len(h.clients))
		}
	}
}

// ServeWS upgrades the request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 8)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// client is the middleman between one websocket connection and the hub.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames; clients only listen. Its real job is
// answering pings and noticing the peer going away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards hub messages to the connection and keeps it alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed us out.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
