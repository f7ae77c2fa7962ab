package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Define notification types
const (
	NotificationTypeConnected          = "connected"
	NotificationTypeUnreadIndexUpdated = "unread_index_updated"
)

const (
	// sendBuffer is how many messages may wait for a slow client before new ones are dropped
	sendBuffer = 16
	// writeWait bounds a single socket write
	writeWait = 10 * time.Second
)

var (
	// ErrNotConnected is returned when the target user has no open socket
	ErrNotConnected = errors.New("user not connected")
	// ErrSendBufferFull is returned when a client is not keeping up and the message was dropped
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	UserID  string      `json:"userID,omitempty"`
}

// Client represents a connected WebSocket client. Only its write pump writes to Conn.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan Notification
}

// NewClient wraps conn for userID
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, Conn: conn, send: make(chan Notification, sendBuffer)}
}

// writePump writes queued messages until the hub closes the send channel or a write fails
func (c *Client) writePump() {
	defer c.Conn.Close()
	for msg := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			return
		}
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub maintains the set of active clients, one connection per user
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and closes every connection when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.UserID]; ok && old != client {
				close(old.send)
			}
			h.clients[client.UserID] = client
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// Register adds client and starts its write pump. It returns false once the hub has
// stopped, in which case the connection is closed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		go client.writePump()
		return true
	case <-h.done:
		client.Conn.Close()
		return false
	}
}

// Unregister removes client if it is still the user's current socket
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Connected reports whether userID has an open socket
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser queues a message for a specific user without waiting on the socket.
// A client whose buffer is full misses the message.
func (h *Hub) SendToUser(userID string, notification Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[userID]
	if !ok {
		return ErrNotConnected
	}
	select {
	case client.send <- notification:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// UnreadIndexChanged tells a connected user to refresh its unread notifications.
// Users without a socket are skipped.
func (h *Hub) UnreadIndexChanged(userID string) {
	_ = h.SendToUser(userID, Notification{
		Type:   NotificationTypeUnreadIndexUpdated,
		UserID: userID,
	})
}
