// Package statsfeed fans network stats snapshots and task change events out
// to subscribed UI clients over websockets.
package statsfeed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridforge/gpumesh/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Message is the envelope delivered to websocket subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks websocket subscribers and broadcasts messages to them.
// Implements engine.StatsSink.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  *models.NetworkStats
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// PublishStats broadcasts a stats snapshot to all subscribers and retains it
// for late joiners.
func (h *Hub) PublishStats(stats models.NetworkStats) {
	h.mu.Lock()
	h.latest = &stats
	h.mu.Unlock()

	h.broadcast(Message{Type: "stats", Data: stats})
}

// PublishTaskEvent broadcasts a task change event to all subscribers.
func (h *Hub) PublishTaskEvent(taskID, event string) {
	h.broadcast(Message{Type: "task", Data: map[string]string{
		"task_id": taskID,
		"event":   event,
	}})
}

// Subscribe adds a websocket connection to the hub and services it until the
// peer disconnects. The latest snapshot, if any, is delivered immediately.
func (h *Hub) Subscribe(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		if data, err := json.Marshal(Message{Type: "stats", Data: *h.latest}); err == nil {
			c.send <- data
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("stats subscriber connected", "subscribers", count)

	go c.writePump()
	c.readPump(h)
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding broadcast message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow subscriber: drop it rather than block the network feed.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump discards inbound frames and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
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

// writePump delivers queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
