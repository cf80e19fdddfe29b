package overlay

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Burnaviour/realtime-translator/internal/metrics"
	"github.com/Burnaviour/realtime-translator/internal/pipeline"
)

// Message is one overlay update pushed to clients.
type Message struct {
	Source    string    `json:"source"`
	Kind      string    `json:"kind"` // "preview" or "final"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	writeWait      = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The overlay runs on localhost; browser clients connect from a
	// file:// or local origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans overlay messages out to connected websocket clients. It
// implements the pipeline Sink contract. Slow clients lose messages rather
// than stalling the pipelines.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    map[string]Message
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// NewHub creates an empty overlay hub. Metrics may be nil.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: m,
		clients: make(map[*client]struct{}),
		last:    make(map[string]Message),
	}
}

// UpdatePreview pushes a tentative partial transcript for a source.
func (h *Hub) UpdatePreview(source pipeline.SourceKind, text string) {
	h.broadcast(Message{
		Source:    source.String(),
		Kind:      "preview",
		Text:      text,
		Timestamp: time.Now(),
	})
}

// UpdateFinal pushes a committed translation for a source.
func (h *Hub) UpdateFinal(source pipeline.SourceKind, text string) {
	h.broadcast(Message{
		Source:    source.String(),
		Kind:      "final",
		Text:      text,
		Timestamp: time.Now(),
	})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	// New clients replay the last final line per source on connect.
	if msg.Kind == "final" {
		h.last[msg.Source] = msg
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("Overlay client too slow, dropping message",
				slog.String("source", msg.Source),
				slog.String("kind", msg.Kind),
			)
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket overlay connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Message, clientSendSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	for _, msg := range h.last {
		select {
		case c.send <- msg:
		default:
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetOverlayClients(count)
	h.logger.Info("Overlay client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("clients", count),
	)

	go c.writePump()
	go h.readPump(c)
}

// readPump discards inbound frames and unregisters the client when the
// connection drops.
func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	h.metrics.SetOverlayClients(count)
}

// ClientCount returns the number of connected overlay clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	h.metrics.SetOverlayClients(0)
}
