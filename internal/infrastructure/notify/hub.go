package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vitos/trade_journal/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type client struct {
	traderID string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub pushes relationship events to the websocket connections of their recipient.
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[string]map[*client]struct{}
	logger   *zap.Logger
	mu       sync.RWMutex
}

var _ domain.Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

// Publish queues ev for every connection of ev.Recipient. A slow connection drops
// the event; it can still be read back from the event feed.
func (h *Hub) Publish(ev domain.RelationshipEvent) {
	if ev.Recipient == "" {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("id", ev.ID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[ev.Recipient] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping event for slow client", zap.String("trader", c.traderID), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Connections returns how many sockets traderID has open.
func (h *Hub) Connections(traderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[traderID])
}

// ServeWS upgrades the request and streams traderID's events until the socket closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, traderID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", zap.Error(err))
		return
	}
	c := &client{traderID: traderID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.logger.Info("WS client connected", zap.String("trader", traderID))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.traderID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.traderID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.traderID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.traderID)
	}
	close(c.send)
}

// readLoop only consumes control frames; clients never send events.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.logger.Info("WS client disconnected", zap.String("trader", c.traderID))
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WS read error", zap.String("trader", c.traderID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
