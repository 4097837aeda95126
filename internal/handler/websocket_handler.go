package handler

import (
	"net/http"

	"github.com/dafibh/loansync/internal/middleware"
	"github.com/dafibh/loansync/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *websocket.Hub
	sessions       middleware.SessionResolver
	allowedOrigins map[string]bool
	upgrader       ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, sessions middleware.SessionResolver, allowedOrigins []string) *WebSocketHandler {
	originMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &WebSocketHandler{
		hub:            hub,
		sessions:       sessions,
		allowedOrigins: originMap,
	}

	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Allow requests with no Origin header (e.g., same-origin or non-browser clients)
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	log.Warn().
		Str("origin", origin).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// HandleWS handles WebSocket connection requests at GET /ws. A tab showing a
// loan file passes ?fileId= to only get that file's loan events; it can
// change the filter later with watch/unwatch messages.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	sessionID := middleware.SessionIDFromRequest(c)
	if sessionID == "" {
		log.Debug().Msg("WebSocket connection rejected: missing session")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}

	s, err := h.sessions.Get(c.Request().Context(), sessionID)
	if err != nil || !s.Auth().IsAuthenticated() {
		log.Debug().Err(err).Msg("WebSocket connection rejected: unknown session")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	client := websocket.NewClient(conn, s.ID(), h.hub)
	client.Watch(c.QueryParam("fileId"))
	h.hub.Register(client)

	log.Info().
		Str("session_id", s.ID()).
		Str("client_id", client.ID()).
		Str("watching", client.Watching()).
		Msg("WebSocket client connected")

	go client.WritePump()
	go client.ReadPump()

	return nil
}
