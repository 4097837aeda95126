package auth

import (
	"sync"

	"github.com/dafibh/loansync/internal/domain"
)

// Session is the token context shared by every component of one login.
// SetTokens is the only writer; all request code reads through the
// accessors at send time.
type Session struct {
	tokens  domain.Tokens
	persist func(domain.Tokens)
	mu      sync.RWMutex
}

// NewSession creates a Session seeded with tokens. persist, when set, is
// called with every new pair so the caller can store it.
func NewSession(tokens domain.Tokens, persist func(domain.Tokens)) *Session {
	return &Session{tokens: tokens, persist: persist}
}

var _ domain.TokenProvider = (*Session)(nil)

// AccessToken returns the current access token
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

// RefreshToken returns the current refresh token
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken
}

// Tokens returns the current pair
func (s *Session) Tokens() domain.Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// IsAuthenticated reports whether an access token is held
func (s *Session) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// SetTokens replaces the pair and persists it
func (s *Session) SetTokens(tokens domain.Tokens) {
	s.mu.Lock()
	s.tokens = tokens
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		persist(tokens)
	}
}

// OnRefresh implements domain.TokenProvider
func (s *Session) OnRefresh(tokens domain.Tokens) {
	s.SetTokens(tokens)
}

// Clear drops both tokens
func (s *Session) Clear() {
	s.SetTokens(domain.Tokens{})
}
