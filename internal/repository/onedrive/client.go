package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the default request rate per second
	DefaultRateLimit = 10
	// DefaultBurstSize is the default burst size
	DefaultBurstSize = 5
	// maxErrorBody caps how much of an error response is read
	maxErrorBody = 64 << 10
)

// Client is a drive file API client authenticated with bearer tokens.
// A 401 triggers one token refresh and one retry of the same request.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	tokens       domain.TokenProvider
	refresher    domain.TokenRefresher
	onAuthFailed func()
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

// Options configures optional Client behaviour
type Options struct {
	HTTPClient   *http.Client
	RateLimit    float64 // requests per second, <= 0 disables limiting
	BurstSize    int
	OnAuthFailed func()
	Logger       zerolog.Logger
}

// NewClient creates a drive client rooted at baseURL (e.g. https://graph.microsoft.com/v1.0)
func NewClient(baseURL string, tokens domain.TokenProvider, refresher domain.TokenRefresher, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.BurstSize
	if burst <= 0 {
		burst = DefaultBurstSize
	}

	onAuthFailed := opts.OnAuthFailed
	if onAuthFailed == nil {
		onAuthFailed = func() {}
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		tokens:       tokens,
		refresher:    refresher,
		onAuthFailed: onAuthFailed,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       opts.Logger.With().Str("component", "drive_client").Logger(),
	}
}

var _ domain.BlobStore = (*Client)(nil)

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
}

// do sends an authenticated request. The caller owns the returned response
// body, whatever its status.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, domain.ErrNoAccessToken
	}

	res, err := c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		c.logger.Warn().Str("url", r.url).Msg("Drive request unauthorized and no refresh token held")
		c.onAuthFailed()
		return res, nil
	}

	tokens, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Token refresh failed")
		c.onAuthFailed()
		return res, nil
	}
	discard(res)
	c.tokens.OnRefresh(tokens)
	c.logger.Debug().Msg("Access token refreshed, retrying request")

	// exactly one retry; a second 401 is final
	retry, err := c.send(ctx, r, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if retry.StatusCode == http.StatusUnauthorized {
		c.logger.Warn().Str("url", r.url).Msg("Drive request unauthorized after token refresh")
		c.onAuthFailed()
	}
	return retry, nil
}

func (c *Client) send(ctx context.Context, r request, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build drive request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive request failed: %w", err)
	}
	return res, nil
}

// doJSON sends r and decodes a successful response into out
func (c *Client) doJSON(ctx context.Context, r request, out interface{}) error {
	res, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer discard(res)

	if err := checkResponse(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode drive response: %w", err)
	}
	return nil
}

// checkResponse maps non-success statuses to domain errors
func checkResponse(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	var envelope errorEnvelope
	data, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	_ = json.Unmarshal(data, &envelope)

	remote := &domain.RemoteError{
		StatusCode: res.StatusCode,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
	}

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, remote)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", domain.ErrItemNotFound, remote)
	}
	return remote
}

// IsRemoteCode reports whether err is a drive error with the given code
func IsRemoteCode(err error, code string) bool {
	var remote *domain.RemoteError
	return errors.As(err, &remote) && remote.Code == code
}

func discard(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	res.Body.Close()
}
