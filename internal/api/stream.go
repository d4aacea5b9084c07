package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

const (
	streamBuffer     = 32
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// Hub fans events out to websocket clients. Each client receives only the
// events of its own session.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	session string
	conn    *websocket.Conn
	send    chan domain.Event
	once    sync.Once
}

func (c *streamClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub with no clients.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS policy is enforced by the router
			},
		},
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Broadcast queues ev for every client of ev.Session. A client whose buffer
// is full misses the event. It matches events.Handler.
func (h *Hub) Broadcast(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.session != ev.Session {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.log.Debug("stream client lagging, event dropped", zap.String("session", c.session))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.stop()
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.stop()
	}
}

// handleStream upgrades to a websocket and streams the caller's events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	h := s.opts.Hub

	conn, err := h.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &streamClient{session: session.Key, conn: conn, send: make(chan domain.Event, streamBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	go c.readLoop(h)
	c.writeLoop()
}

// readLoop discards client messages and unregisters on disconnect.
func (c *streamClient) readLoop(h *Hub) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writeLoop() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
