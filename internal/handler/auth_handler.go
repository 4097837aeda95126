package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dafibh/loansync/internal/auth"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/middleware"
	"github.com/dafibh/loansync/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	oauthStateCookie = "loansync_oauth_state"
	pkceCookie       = "loansync_pkce"
	oauthCookieTTL   = 10 * time.Minute
)

// OAuthClient runs the authorization-code flow against the drive provider
type OAuthClient interface {
	AuthorizeURL(state, challenge string) string
	Exchange(ctx context.Context, code, verifier string) (domain.Tokens, error)
}

// AuthHandlerConfig holds configuration for an AuthHandler
type AuthHandlerConfig struct {
	SessionTTL      time.Duration
	SecureCookies   bool
	SuccessRedirect string // where the browser lands after signing in
	FailureRedirect string
}

// AuthHandler handles sign in and the session endpoints
type AuthHandler struct {
	oauth    OAuthClient
	sessions *service.SessionManager
	config   AuthHandlerConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(oauth OAuthClient, sessions *service.SessionManager, config AuthHandlerConfig) *AuthHandler {
	if config.SuccessRedirect == "" {
		config.SuccessRedirect = "/list"
	}
	if config.FailureRedirect == "" {
		config.FailureRedirect = "/login"
	}
	return &AuthHandler{oauth: oauth, sessions: sessions, config: config}
}

// SessionRequest represents the create session request body
type SessionRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionResponse describes the caller's session
type SessionResponse struct {
	SessionID     string `json:"sessionId"`
	Authenticated bool   `json:"authenticated"`
}

// Login starts the authorization-code flow with PKCE
// GET /api/login
func (h *AuthHandler) Login(c echo.Context) error {
	verifier, err := auth.GenerateCodeVerifier()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate PKCE verifier")
		return NewInternalError(c, "Failed to start sign in")
	}
	state := uuid.NewString()

	h.setFlowCookie(c, oauthStateCookie, state, oauthCookieTTL)
	h.setFlowCookie(c, pkceCookie, verifier, oauthCookieTTL)

	return c.Redirect(http.StatusFound, h.oauth.AuthorizeURL(state, auth.CodeChallenge(verifier)))
}

// Callback finishes the flow, creates the session and redirects to the app
// GET /api/login-callback
func (h *AuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		log.Warn().Str("error", c.QueryParam("error")).Msg("Sign in callback without code")
		return c.Redirect(http.StatusFound, h.config.FailureRedirect)
	}

	stateCookie, err := c.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != c.QueryParam("state") {
		log.Warn().Msg("Sign in callback with mismatched state")
		return c.Redirect(http.StatusFound, h.config.FailureRedirect)
	}
	verifierCookie, err := c.Cookie(pkceCookie)
	if err != nil || verifierCookie.Value == "" {
		log.Warn().Msg("Sign in callback without PKCE verifier")
		return c.Redirect(http.StatusFound, h.config.FailureRedirect)
	}

	h.setFlowCookie(c, oauthStateCookie, "", -1)
	h.setFlowCookie(c, pkceCookie, "", -1)

	tokens, err := h.oauth.Exchange(c.Request().Context(), code, verifierCookie.Value)
	if err != nil {
		log.Warn().Err(err).Msg("Authorization code exchange failed")
		return c.Redirect(http.StatusFound, h.config.FailureRedirect)
	}

	s, err := h.sessions.Create(c.Request().Context(), tokens)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		return c.Redirect(http.StatusFound, h.config.FailureRedirect)
	}
	middleware.SetSessionCookie(c, s.ID(), h.config.SessionTTL, h.config.SecureCookies)

	return c.Redirect(http.StatusFound, h.config.SuccessRedirect)
}

// CreateSession stores a token pair obtained by the client
// POST /api/session
func (h *AuthHandler) CreateSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.AccessToken == "" {
		return NewValidationError(c, "Access token is required", []ValidationError{
			{Field: "accessToken", Message: "Required"},
		})
	}

	s, err := h.sessions.Create(c.Request().Context(), domain.Tokens{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		return respondError(c, err)
	}
	middleware.SetSessionCookie(c, s.ID(), h.config.SessionTTL, h.config.SecureCookies)

	return c.JSON(http.StatusOK, SessionResponse{SessionID: s.ID(), Authenticated: true})
}

// GetSession reports the caller's session
// GET /api/session
func (h *AuthHandler) GetSession(c echo.Context) error {
	s := middleware.GetSession(c)
	if s == nil {
		return NewUnauthorizedError(c, "Sign in required")
	}
	return c.JSON(http.StatusOK, SessionResponse{SessionID: s.ID(), Authenticated: s.Auth().IsAuthenticated()})
}

// DeleteSession signs the caller out
// DELETE /api/session
func (h *AuthHandler) DeleteSession(c echo.Context) error {
	id := middleware.SessionIDFromRequest(c)
	middleware.ClearSessionCookie(c)
	if id == "" {
		return c.NoContent(http.StatusNoContent)
	}

	if err := h.sessions.Delete(c.Request().Context(), id); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to delete session")
		return NewInternalError(c, "Failed to sign out")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) setFlowCookie(c echo.Context, name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/api",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	c.SetCookie(cookie)
}
