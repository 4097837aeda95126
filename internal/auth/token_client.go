package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
)

// TokenClient talks to the OAuth2 token endpoint of the drive provider
type TokenClient struct {
	cfg        config.DriveConfig
	httpClient *http.Client
}

// NewTokenClient creates a TokenClient. A nil httpClient gets a 30s timeout client.
func NewTokenClient(cfg config.DriveConfig, httpClient *http.Client) *TokenClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenClient{cfg: cfg, httpClient: httpClient}
}

var _ domain.TokenRefresher = (*TokenClient)(nil)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange trades an authorization code and its PKCE verifier for tokens
func (c *TokenClient) Exchange(ctx context.Context, code, verifier string) (domain.Tokens, error) {
	if code == "" || verifier == "" {
		return domain.Tokens{}, fmt.Errorf("%w: code and verifier are required", domain.ErrInvalidInput)
	}
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURL},
		"grant_type":    {"authorization_code"},
		"code_verifier": {verifier},
	}
	return c.post(ctx, form)
}

// Refresh trades a refresh token for a new pair
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	if refreshToken == "" {
		return domain.Tokens{}, domain.ErrNoRefreshToken
	}
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	tokens, err := c.post(ctx, form)
	if err != nil {
		return domain.Tokens{}, err
	}
	// providers may not rotate the refresh token
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (c *TokenClient) post(ctx context.Context, form url.Values) (domain.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("%w: %v", domain.ErrTokenRequestFailed, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("%w: %v", domain.ErrTokenRequestFailed, err)
	}

	var data tokenResponse
	if err := json.Unmarshal(body, &data); err != nil || data.AccessToken == "" {
		detail := data.ErrorDescription
		if detail == "" {
			detail = fmt.Sprintf("status %d", res.StatusCode)
		}
		return domain.Tokens{}, fmt.Errorf("%w: %s", domain.ErrTokenRequestFailed, detail)
	}

	return domain.Tokens{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}, nil
}
