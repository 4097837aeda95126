package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	// SessionCookieName is the cookie carrying the session id
	SessionCookieName = "loansync_session"
	// SessionHeader carries the session id for non-browser clients
	SessionHeader = "X-Session-ID"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the live login session
	SessionKey contextKey = "session"
	// SessionIDKey is the context key for the session id
	SessionIDKey contextKey = "session_id"
)

// SessionResolver looks a login session up by id
type SessionResolver interface {
	Get(ctx context.Context, id string) (*service.LoginSession, error)
}

// RequireSession returns an Echo middleware that resolves the caller's login
// session and rejects requests without one
func RequireSession(sessions SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := SessionIDFromRequest(c)
			if id == "" {
				return unauthorizedError(c, "sign in required")
			}

			s, err := sessions.Get(c.Request().Context(), id)
			if errors.Is(err, domain.ErrSessionNotFound) {
				ClearSessionCookie(c)
				return unauthorizedError(c, "session expired, please sign in again")
			}
			if err != nil {
				log.Error().Err(err).Msg("Session lookup failed")
				return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
			}
			if !s.Auth().IsAuthenticated() {
				return unauthorizedError(c, "sign in required")
			}

			ctx := context.WithValue(c.Request().Context(), SessionKey, s)
			ctx = context.WithValue(ctx, SessionIDKey, s.ID())
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// SessionIDFromRequest reads the session id from the cookie, falling back to
// the header
func SessionIDFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return c.Request().Header.Get(SessionHeader)
}

// SetSessionCookie issues the session cookie
func SetSessionCookie(c echo.Context, id string, ttl time.Duration, secure bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	c.SetCookie(cookie)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSession extracts the login session from the context
func GetSession(c echo.Context) *service.LoginSession {
	if s, ok := c.Request().Context().Value(SessionKey).(*service.LoginSession); ok {
		return s
	}
	return nil
}

// GetSessionID extracts the session id from the context
func GetSessionID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
