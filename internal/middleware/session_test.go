package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/service"
	"github.com/dafibh/loansync/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *service.SessionManager {
	t.Helper()
	blobs := testutil.NewMockBlobStore()
	m := service.NewSessionManager(
		testutil.NewMockSessionStore(),
		func(domain.TokenProvider, func()) domain.BlobStore { return blobs },
		zerolog.Nop(),
		service.SessionManagerConfig{TTL: time.Hour},
	)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func runRequireSession(t *testing.T, m *service.SessionManager, prepare func(req *http.Request)) (*httptest.ResponseRecorder, *service.LoginSession) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	prepare(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *service.LoginSession
	err := RequireSession(m)(func(c echo.Context) error {
		seen = GetSession(c)
		assert.Equal(t, seen.ID(), GetSessionID(c))
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	return rec, seen
}

func TestRequireSession_Cookie(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create(context.Background(), domain.Tokens{AccessToken: "a", RefreshToken: "r"})
	require.NoError(t, err)

	rec, seen := runRequireSession(t, m, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.ID()})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, s, seen)
}

func TestRequireSession_Header(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create(context.Background(), domain.Tokens{AccessToken: "a"})
	require.NoError(t, err)

	rec, seen := runRequireSession(t, m, func(req *http.Request) {
		req.Header.Set(SessionHeader, s.ID())
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, s, seen)
}

func TestRequireSession_Rejections(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name           string
		prepare        func(req *http.Request)
		clearsCookie   bool
		detailContains string
	}{
		{"no session", func(req *http.Request) {}, false, "sign in required"},
		{"unknown session", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "gone"})
		}, true, "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, seen := runRequireSession(t, m, tt.prepare)

			assert.Nil(t, seen)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), errorTypeUnauthorized)
			assert.Contains(t, rec.Body.String(), tt.detailContains)
			assert.Equal(t, tt.clearsCookie, rec.Header().Get("Set-Cookie") != "")
		})
	}
}

func TestRequireSession_SignedOutSession(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create(context.Background(), domain.Tokens{AccessToken: "a"})
	require.NoError(t, err)
	s.Auth().Clear()

	rec, seen := runRequireSession(t, m, func(req *http.Request) {
		req.Header.Set(SessionHeader, s.ID())
	})

	assert.Nil(t, seen)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetSessionCookie(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/session", nil), rec)

	SetSessionCookie(c, "s1", time.Hour, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, "s1", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}

func TestGetSession_Empty(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Nil(t, GetSession(c))
	assert.Empty(t, GetSessionID(c))
}
