package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled by the HTTP server
	CheckOrigin: func(r *http.Request) bool { return true },
}

type message struct {
	kind     settlement.EventKind
	identity common.Address
	data     []byte
}

// Hub fans committed settlement events out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns client registration and delivery until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			logger.Debug("ws client connected", "client", c.id, "total", h.Clients())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.filter.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// slow consumer
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues ev for delivery. It never blocks on slow clients.
func (h *Hub) Publish(ctx context.Context, ev settlement.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{kind: ev.Kind, identity: ev.Identity, data: data}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler upgrades GET /v1/events/ws. Optional query filters:
// identity=<address> and kind=<settlement,withdrawal,...>.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := parseFilter(c.Query("identity"), c.Query("kind"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "invalid identity filter"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err.Error())
			return
		}
		cl := &client{
			id:     uuid.NewString(),
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			filter: f,
		}
		select {
		case h.register <- cl:
		case <-h.done:
			_ = conn.Close()
			return
		}
		go cl.writePump()
		go cl.readPump()
	}
}

type filter struct {
	identity *common.Address
	kinds    map[settlement.EventKind]struct{}
}

func parseFilter(identity, kinds string) (filter, bool) {
	var f filter
	if identity != "" {
		if !common.IsHexAddress(identity) {
			return f, false
		}
		addr := common.HexToAddress(identity)
		f.identity = &addr
	}
	if kinds != "" {
		f.kinds = make(map[settlement.EventKind]struct{})
		for _, k := range strings.Split(kinds, ",") {
			f.kinds[settlement.EventKind(strings.TrimSpace(k))] = struct{}{}
		}
	}
	return f, true
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter filter
}

func (f filter) wants(m message) bool {
	if f.identity != nil && *f.identity != m.identity {
		return false
	}
	if f.kinds != nil {
		if _, ok := f.kinds[m.kind]; !ok {
			return false
		}
	}
	return true
}

// readPump only services control frames; the feed is one-way.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("ws read error", "client", c.id, "error", err.Error())
			}
			return
		}
	}
}

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

var _ settlement.Publisher = (*Hub)(nil)
