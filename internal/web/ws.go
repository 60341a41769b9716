package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_market_table/internal/domain"
	"github.com/vitos/crypto_market_table/internal/usecase"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 8
)

// Message is the envelope exchanged over /ws.
// Server to client: "dataset" (Data set) and "error".
// Client to server: "sort" (Column set).
type Message struct {
	Type   string          `json:"type"`
	Data   *domain.Dataset `json:"data,omitempty"`
	Column string          `json:"column,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every published Dataset out to the connected websocket clients and
// routes their sort requests back to the view.
type Hub struct {
	clients    map[*Client]struct{}
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	upgrader   websocket.Upgrader

	view     *usecase.DatasetView
	observer Observer
	logger   *zap.Logger
}

func NewHub(view *usecase.DatasetView, observer Observer, logger *zap.Logger) *Hub {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		view:     view,
		observer: observer,
		logger:   logger,
	}
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	unsubscribe := h.view.OnUpdate(h.broadcast)
	defer func() {
		unsubscribe()
		close(h.quit)
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Websocket hub stopping")
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		}
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.observer.ObserveConnections(n)
	h.logger.Debug("Websocket client registered", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))

	// Late joiners get the table straight away.
	ds := h.view.Current()
	if data, err := json.Marshal(Message{Type: "dataset", Data: &ds}); err == nil {
		c.send <- data
	}
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.observer.ObserveConnections(n)
	h.logger.Debug("Websocket client unregistered", zap.Int("clients", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.observer.ObserveConnections(0)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast runs on the publishing goroutine, so it never blocks on a slow
// client: a full send buffer drops that client's copy.
func (h *Hub) broadcast(ds domain.Dataset) {
	data, err := json.Marshal(Message{Type: "dataset", Data: &ds})
	if err != nil {
		h.logger.Error("Failed to marshal dataset", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client send buffer full, dropping dataset",
				zap.String("remote", c.conn.RemoteAddr().String()), zap.Uint64("version", ds.Version))
		}
	}
}

func (h *Hub) handleMessage(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed message")
		return
	}
	if msg.Type != "sort" {
		c.sendError("unsupported message type " + msg.Type)
		return
	}

	col, err := domain.ParseColumn(msg.Column)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	h.observer.ObserveSort(col)
	// The resulting dataset reaches this client through broadcast.
	if _, err := h.view.RequestSort(col); err != nil {
		c.sendError(err.Error())
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.Register(c) {
		conn.Close()
		return
	}
	go c.writer()
	go c.reader()
}

func (c *Client) sendError(text string) {
	data, err := json.Marshal(Message{Type: "error", Error: text})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Failed to write to client", zap.Error(err))
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

func (c *Client) reader() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Unexpected websocket close", zap.Error(err))
			}
			return
		}
		c.hub.handleMessage(c, raw)
	}
}
