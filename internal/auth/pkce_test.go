package auth

import (
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/dafibh/loansync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	first, err := GenerateCodeVerifier()
	require.NoError(t, err)
	second, err := GenerateCodeVerifier()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	_, err = hex.DecodeString(first)
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"),
	)
}

func TestAuthorizeURL(t *testing.T) {
	client := NewTokenClient(config.DriveConfig{
		ClientID:     "client-1",
		Scopes:       []string{"Files.ReadWrite", "offline_access"},
		AuthorizeURL: "https://login.example.com/authorize",
		RedirectURL:  "http://localhost:8080/api/login-callback",
	}, nil)

	raw := client.AuthorizeURL("state-1", "challenge-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "login.example.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:8080/api/login-callback", q.Get("redirect_uri"))
	assert.Equal(t, "Files.ReadWrite offline_access", q.Get("scope"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "query", q.Get("response_mode"))
	assert.Equal(t, "state-1", q.Get("state"))

	noState, err := url.Parse(client.AuthorizeURL("", "c"))
	require.NoError(t, err)
	assert.False(t, noState.Query().Has("state"))
}
