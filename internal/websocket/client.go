package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// writeWait is time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// pongWait is time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending pings (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is maximum message size allowed from peer
	maxMessageSize = 512
)

// Inbound actions a tab can send
const (
	ActionWatch   = "watch"
	ActionUnwatch = "unwatch"
)

// ClientMessage is a message sent by a browser tab
type ClientMessage struct {
	Action string `json:"action"`
	FileID string `json:"fileId,omitempty"`
}

// Client represents a single WebSocket connection, usually one browser tab.
// A tab showing a loan file watches it and only gets that file's loan events.
type Client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	closed    bool
	watching  string
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, sessionID string, hub *Hub) *Client {
	return &Client{
		id:        uuid.New().String(),
		sessionID: sessionID,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, 64),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() string {
	return c.id
}

// SessionID returns the login session the client belongs to
func (c *Client) SessionID() string {
	return c.sessionID
}

// Watching returns the file id the tab is showing, if any
func (c *Client) Watching() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// Watch limits loan events to one file; an empty id clears the filter
func (c *Client) Watch(fileID string) {
	c.mu.Lock()
	c.watching = fileID
	c.mu.Unlock()
}

// Wants reports whether the event should be delivered to this tab
func (c *Client) Wants(event Event) bool {
	return event.Delivered(c.Watching())
}

// handleMessage applies one inbound message
func (c *Client) handleMessage(data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid client message: %w", err)
	}

	switch msg.Action {
	case ActionWatch:
		if msg.FileID == "" {
			return fmt.Errorf("watch needs a fileId")
		}
		c.Watch(msg.FileID)
	case ActionUnwatch:
		c.Watch("")
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}

// Send queues a message to be sent to the client
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer is full, client is too slow
		return ErrClientClosed
	}
}

// Close closes the client connection
// Safe to call multiple times from different goroutines
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		closeErr = c.conn.Close()
	})
	return closeErr
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ReadPump pumps messages from the WebSocket connection
// This should be run in a goroutine
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
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
				log.Warn().
					Err(err).
					Str("client_id", c.id).
					Msg("WebSocket unexpected close")
			}
			break
		}
		if err := c.handleMessage(data); err != nil {
			log.Debug().
				Err(err).
				Str("client_id", c.id).
				Msg("Ignoring WebSocket message")
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
// This should be run in a goroutine
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, hub closed this client
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("client_id", c.id).
					Msg("WebSocket write error")
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
