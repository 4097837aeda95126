package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/middleware"
	"github.com/dafibh/loansync/internal/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

var testAllowedOrigins = []string{"http://localhost:3000", "https://loansync.app"}

func TestWebSocketHandler_HandleWS_MissingSession(t *testing.T) {
	f := newAuthFixture(t)
	h := NewWebSocketHandler(websocket.NewHub(), f.sessions, testAllowedOrigins)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)

	err := h.HandleWS(c)

	// Should return 401 for missing session
	assert.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestWebSocketHandler_HandleWS_UnknownSession(t *testing.T) {
	f := newAuthFixture(t)
	h := NewWebSocketHandler(websocket.NewHub(), f.sessions, testAllowedOrigins)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "unknown"})
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)

	err := h.HandleWS(c)

	assert.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestWebSocketHandler_HandleWS_ValidSession_NoUpgrade(t *testing.T) {
	f := newAuthFixture(t)
	s, err := f.sessions.Create(context.Background(), domain.Tokens{AccessToken: "a"})
	assert.NoError(t, err)
	hub := websocket.NewHub()
	h := NewWebSocketHandler(hub, f.sessions, testAllowedOrigins)

	// Request with a valid session but not a WebSocket upgrade request
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: s.ID()})
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)

	err = h.HandleWS(c)

	// gorilla/websocket returns an error when upgrade fails (no upgrade headers)
	// This is expected behavior - we're testing the session check passes first
	assert.Error(t, err)
	if httpErr, ok := err.(*echo.HTTPError); ok {
		assert.NotEqual(t, http.StatusUnauthorized, httpErr.Code)
	}
	assert.Zero(t, hub.TotalClientCount())
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	f := newAuthFixture(t)
	h := NewWebSocketHandler(websocket.NewHub(), f.sessions, testAllowedOrigins)

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"no origin", "", true},
		{"allowed origin", "http://localhost:3000", true},
		{"production origin", "https://loansync.app", true},
		{"disallowed origin", "https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, h.checkOrigin(req))
		})
	}
}
