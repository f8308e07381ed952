package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/gorilla/websocket"
)

var _ core.Observer = (*Hub)(nil)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Message represents a WS message.
type Message struct {
	Type  string `json:"type"`
	Level string `json:"level,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Time  string `json:"time,omitempty"`

	// Submission transitions
	ID      string `json:"id,omitempty"`
	Tool    string `json:"tool,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`

	// Backend capability flags
	Features map[string]bool `json:"features,omitempty"`
}

// Client represents a connected WS client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WS clients and broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	sticky     []byte // last sticky message, replayed to new clients
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			sticky := h.sticky
			h.mu.Unlock()
			if sticky != nil {
				select {
				case client.send <- sticky:
				default:
				}
			}
			slog.Debug("ws client registered", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			slog.Debug("ws client unregistered", "clients", len(h.clients))

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						delete(h.clients, c)
						close(c.send)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast sends a message to all clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal broadcast", "error", err)
		return
	}
	h.broadcast <- data
}

// BroadcastSticky caches the message and broadcasts it. Late-joining clients receive the cached copy.
func (h *Hub) BroadcastSticky(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal broadcast", "error", err)
		return
	}
	h.mu.Lock()
	h.sticky = data
	h.mu.Unlock()
	h.broadcast <- data
}

// Sticky returns the cached sticky message, if any.
func (h *Hub) Sticky() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sticky
}

// Transition implements core.Observer by broadcasting each state change.
func (h *Hub) Transition(ev core.Event) {
	msg := Message{
		Type: "transition",
		ID:   ev.ID,
		Tool: ev.Tool,
		From: string(ev.From),
		To:   string(ev.To),
		Time: time.Now().Format(time.RFC3339),
	}
	if ev.To == core.StateResolved {
		success := ev.Success
		msg.Success = &success
	}
	if ev.Err != nil {
		msg.Kind = string(ev.Err.Kind)
		msg.Error = ev.Err.Message
	}
	h.Broadcast(msg)
}

// ClearSticky removes the cached sticky message.
func (h *Hub) ClearSticky() {
	h.mu.Lock()
	h.sticky = nil
	h.mu.Unlock()
}

// readPump pumps messages from WS to hub.
func (c *Client) readPump(handler func(*Client, Message)) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("ws read error", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Error("ws unmarshal", "error", err)
			continue
		}

		handler(c, msg)
	}
}

// writePump pumps messages from hub to WS.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Drain queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// Send sends a message to this client.
func (c *Client) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
