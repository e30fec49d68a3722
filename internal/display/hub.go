package display

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"raffle/internal/draw"
)

// Config holds the WebSocket settings of the hub.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns settings suited to a display on the same machine.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub fans draw events out to every connected drawing surface.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
	config   Config

	broadcastCh chan []byte
}

type client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	connectedAt time.Time
}

func NewHub(config Config) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 1000),
	}
}

// Run delivers published events until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("Display hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logger.Info("Display hub stopped")
			return
		case msg := <-h.broadcastCh:
			h.broadcast(msg)
		}
	}
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full the event is dropped, which only costs a frame of the animation.
func (h *Hub) Publish(ev draw.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("Failed to marshal %s event: %v", ev.Type, err)
		return
	}
	select {
	case h.broadcastCh <- data:
	default:
		logger.Warningf("Display broadcast queue full, dropping %s event", ev.Type)
	}
}

// ServeWS upgrades the request and registers the connection as a display.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		logger.Errorf("Failed to upgrade display connection: %v", err)
		return
	}

	c := &client{
		id:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         h,
		connectedAt: time.Now(),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	logger.Infof("Display %s connected from %s", c.id, r.RemoteAddr)
}

// ClientCount returns the number of connected displays.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		logger.Infof("Display %s disconnected after %s", c.id, time.Since(c.connectedAt).Round(time.Second))
	}
}

// broadcast sends under the read lock so unregister cannot close a send
// channel mid-loop. Slow clients are dropped after the lock is released.
func (h *Hub) broadcast(msg []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warningf("Display %s is too slow, closing it", c.id)
		h.unregister(c)
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.unregister(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Errorf("Failed to write to display %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the read deadline alive; displays do not send commands.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Unexpected close from display %s: %v", c.id, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
