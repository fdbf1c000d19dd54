// Package hub fans server events out to every connected websocket client.
package hub

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// Hub tracks connected clients and broadcasts frames to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  zerolog.Logger
	wg      sync.WaitGroup
	closed  bool // set by CloseAll, guarded by mu
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

type client struct {
	identity string
	conn     *websocket.Conn
	send     chan []byte
}

// encode marshals v without HTML escaping so message bodies reach
// clients exactly as they were posted.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Broadcast sends v as one JSON text frame to every client. Slow clients
// lose their oldest queued frame rather than blocking the broadcast.
func (h *Hub) Broadcast(v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.push(data)
	}
	return nil
}

// push must be called with the hub lock held so send is not closed under it.
func (c *client) push(data []byte) {
	select {
	case c.send <- data:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

// Serve runs conn until it fails or the hub closes it. It blocks. After
// CloseAll the connection is closed with a going-away frame straight away.
func (h *Hub) Serve(conn *websocket.Conn, identity string) {
	c := &client{
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	// Add under mu so it cannot race with CloseAll's Wait.
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
	h.logger.Debug().Str("identity", identity).Msg("websocket client connected")

	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()

	c.readLoop()

	h.remove(c)
	metrics.WebsocketClients.Dec()
	h.logger.Debug().Str("identity", identity).Msg("websocket client disconnected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connected reports whether identity has at least one open socket.
func (h *Hub) Connected(identity string) bool {
	return h.Count(identity) > 0
}

// Count returns the number of open sockets for identity.
func (h *Hub) Count(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.identity == identity {
			n++
		}
	}
	return n
}

// CloseAll sends a close frame to every client (used during shutdown)
// and waits for their writers to finish.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// readLoop drains the connection so pongs and close frames are handled.
// Clients do not send messages over the socket.
func (c *client) readLoop() {
	c.conn.SetReadLimit(1 << 16)
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

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
