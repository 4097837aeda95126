package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	// First 5 requests should be allowed (burst)
	for i := 0; i < 5; i++ {
		if !rl.Allow("session:a") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be rate limited (exceeded burst)
	if rl.Allow("session:a") {
		t.Error("Request 6 should be rate limited")
	}
}

func TestRateLimiter_DifferentCallers(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("session:a") {
			t.Errorf("Caller a request %d should be allowed", i+1)
		}
	}
	if rl.Allow("session:a") {
		t.Error("Caller a should be rate limited")
	}

	// Caller b should still have its full burst
	for i := 0; i < 3; i++ {
		if !rl.Allow("session:b") {
			t.Errorf("Caller b request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl := NewRateLimiterWithConfig(90, 3)
	defer rl.Stop()

	if rl.PerMinute() != 90 {
		t.Errorf("Expected 90 per minute, got %d", rl.PerMinute())
	}
}

func TestRateLimitKey(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		setup    func(req *http.Request) *http.Request
		expected string
	}{
		{
			name: "resolved session",
			setup: func(req *http.Request) *http.Request {
				return req.WithContext(context.WithValue(req.Context(), SessionIDKey, "s1"))
			},
			expected: "session:s1",
		},
		{
			name: "session cookie",
			setup: func(req *http.Request) *http.Request {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s2"})
				return req
			},
			expected: "session:s2",
		},
		{
			name: "client ip",
			setup: func(req *http.Request) *http.Request {
				req.RemoteAddr = "192.0.2.7:4567"
				return req
			},
			expected: "ip:192.0.2.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.setup(httptest.NewRequest(http.MethodGet, "/", nil))
			c := e.NewContext(req, httptest.NewRecorder())

			if key := rateLimitKey(c); key != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, key)
			}
		})
	}
}

func TestRateLimitMiddleware_LimitsSession(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 2) // Small burst for testing
	defer rl.Stop()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
	newContext := func() (echo.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/records/f1/payments", nil)
		req.Header.Set(SessionHeader, "s1")
		rec := httptest.NewRecorder()
		return e.NewContext(req, rec), rec
	}

	// First 2 requests should succeed (burst)
	for i := 0; i < 2; i++ {
		c, rec := newContext()
		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Request %d: Expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("Request %d: Expected X-RateLimit-Limit 10, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	// 3rd request should be rate limited
	c, rec := newContext()
	if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}
