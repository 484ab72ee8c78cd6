package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/pkg/logging"
	"github.com/rustyeddy/propdesk/pricing"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans quote updates out to websocket clients.
type Hub struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		log:     log.WithComponent("quote-stream"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run forwards quotes to every client until ctx is done or quotes closes.
func (h *Hub) Run(ctx context.Context, quotes <-chan pricing.Quote) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quotes:
			if !ok {
				return
			}
			msg, err := json.Marshal(q)
			if err != nil {
				h.log.Error("encode quote", zap.Error(err))
				continue
			}
			h.Broadcast(msg)
		}
	}
}

// Broadcast writes msg to every client, dropping those that fail.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("dropping quote client", zap.Error(err))
			_ = c.Close()
			delete(h.clients, c)
		}
	}
}

// ServeWS upgrades the request and registers the connection. Incoming
// messages are discarded; the read loop only detects disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		_ = c.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}
