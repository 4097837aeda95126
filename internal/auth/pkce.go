package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// GenerateCodeVerifier returns a PKCE code verifier of 32 random bytes, hex encoded
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CodeChallenge derives the S256 challenge for verifier
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthorizeURL builds the authorization-code request URL
func (c *TokenClient) AuthorizeURL(state, challenge string) string {
	params := url.Values{
		"client_id":             {c.cfg.ClientID},
		"response_type":         {"code"},
		"redirect_uri":          {c.cfg.RedirectURL},
		"scope":                 {strings.Join(c.cfg.Scopes, " ")},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"response_mode":         {"query"},
	}
	if state != "" {
		params.Set("state", state)
	}
	return c.cfg.AuthorizeURL + "?" + params.Encode()
}
