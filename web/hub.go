package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	logutil "consensus-engine/logging"
	"consensus-engine/metrics"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// dashboards are served from anywhere on the lab network
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans tick summaries out to websocket viewers. Broadcasts beyond the
// configured rate are dropped; the latest message is still kept and sent to
// viewers that connect later.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	limiter *rate.Limiter
	closed  bool
	log     logr.Logger
}

// NewHub creates a hub that broadcasts at most hz messages per second. hz <= 0
// disables throttling.
func NewHub(hz float64, logger logr.Logger) *Hub {
	h := &Hub{clients: make(map[*client]struct{}), log: logger}
	if hz > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(hz), 1)
	}
	return h
}

// Broadcast queues msg for every viewer. It reports false when the message
// was throttled. Viewers whose buffer is full miss the message.
func (h *Hub) Broadcast(msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	if h.limiter != nil && !h.limiter.Allow() {
		return false
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.V(logutil.DEBUG).Info("viewer lagging, message dropped", "remote", c.conn.RemoteAddr().String())
		}
	}
	return true
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.remove(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	metrics.HubClients.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with h.mu held.
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.HubClients.Set(float64(len(h.clients)))
}

func serveWs(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(err, "websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.log.V(logutil.VERBOSE).Info("viewer connected", "remote", conn.RemoteAddr().String())

	go c.writePump()
	// viewers never send anything meaningful; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	h.log.V(logutil.VERBOSE).Info("viewer disconnected", "remote", conn.RemoteAddr().String())
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
