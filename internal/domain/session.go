package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrTokenRequestFailed = errors.New("token request failed")
)

// Tokens is the OAuth token pair for the drive
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenProvider gives request code read access to the current tokens and a
// hook to persist a refreshed pair
type TokenProvider interface {
	AccessToken() string
	RefreshToken() string
	OnRefresh(tokens Tokens)
}

// TokenRefresher exchanges a refresh token for a new token pair
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// SessionStore is the opaque key-value store behind the session endpoints
type SessionStore interface {
	Get(ctx context.Context, id string) (Tokens, error)
	Save(ctx context.Context, id string, tokens Tokens, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
