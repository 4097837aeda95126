package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// ClientInterface defines the interface that clients must implement
type ClientInterface interface {
	ID() string
	SessionID() string
	Wants(event Event) bool
	Send(data []byte) error
	Close() error
}

// Hub manages WebSocket connections organized by login session.
// A browser may hold several tabs on one session.
// It is safe for concurrent use
type Hub struct {
	// sessions maps session ID to a map of client ID to client
	sessions map[string]map[string]ClientInterface
	mu       sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[string]ClientInterface),
	}
}

// Register adds a client to the hub under its session
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionID := client.SessionID()
	clientID := client.ID()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]ClientInterface)
	}

	h.sessions[sessionID][clientID] = client

	log.Debug().
		Str("client_id", clientID).
		Msg("WebSocket client registered")
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionID := client.SessionID()
	clientID := client.ID()

	if clients, ok := h.sessions[sessionID]; ok {
		if _, exists := clients[clientID]; exists {
			delete(clients, clientID)

			if len(clients) == 0 {
				delete(h.sessions, sessionID)
			}

			log.Debug().
				Str("client_id", clientID).
				Msg("WebSocket client unregistered")
		}
	}
}

// Disconnect closes and removes every client of a session
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	clients := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
}

// Broadcast sends an event to the clients of a session that want it
func (h *Hub) Broadcast(sessionID string, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	h.mu.RLock()
	clients, ok := h.sessions[sessionID]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy clients to avoid holding lock during send
	clientsCopy := make([]ClientInterface, 0, len(clients))
	for _, client := range clients {
		if client.Wants(event) {
			clientsCopy = append(clientsCopy, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clientsCopy {
		go func(c ClientInterface) {
			if err := c.Send(data); err != nil {
				log.Warn().
					Err(err).
					Str("client_id", c.ID()).
					Msg("Failed to send to client")
			}
		}(client)
	}

	log.Debug().
		Str("event_type", event.Type).
		Int("client_count", len(clientsCopy)).
		Msg("Broadcast event")
}

// ClientCount returns the number of clients connected to a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}

// TotalClientCount returns the total number of connected clients
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.sessions {
		total += len(clients)
	}
	return total
}
