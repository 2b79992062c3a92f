package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Fatal("expected request_id to be set")
	}
	if got := rec.Header().Get("X-Request-ID"); got != rid {
		t.Errorf("response header = %q, want %q", got, rid)
	}
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rid, _ := c.Get("request_id").(string); rid != "upstream-id" {
		t.Errorf("request_id = %q, want upstream-id", rid)
	}
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	var lastErr error
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		lastErr = handler(c)
	}

	he, ok := lastErr.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError on third request, got %v", lastErr)
	}
	if he.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", he.Code)
	}
}
