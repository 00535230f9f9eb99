package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenBucketRefill(t *testing.T) {
	l := NewSimpleTokenBucket(2, 60)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := l.allow("ip"); got != want {
			t.Fatalf("request %d: allow = %v, want %v", i, got, want)
		}
	}
	if !l.allow("other") {
		t.Fatal("buckets must be per key")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.allow("ip") {
		t.Fatal("expected one token after 1.5s at 60/min")
	}
	if l.allow("ip") {
		t.Fatal("expected bucket drained again")
	}

	now = now.Add(time.Hour)
	if !l.allow("ip") || !l.allow("ip") || l.allow("ip") {
		t.Fatal("refill must be capped at capacity")
	}
}

func TestRedisWindowKey(t *testing.T) {
	l := NewRedisWindow(nil, 10)
	l.now = func() time.Time { return time.Unix(600, 0) }
	if got := l.windowKey("1.2.3.4"); got != "classattend:rl:1.2.3.4:10" {
		t.Fatalf("windowKey = %q", got)
	}
	l.now = func() time.Time { return time.Unix(659, 0) }
	if got := l.windowKey("1.2.3.4"); got != "classattend:rl:1.2.3.4:10" {
		t.Fatalf("same minute must share a key, got %q", got)
	}
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		l      Limiter
		status int
	}{
		{"allowed", stubLimiter{ok: true}, http.StatusOK},
		{"limited", stubLimiter{ok: false}, http.StatusTooManyRequests},
		{"limiter down", stubLimiter{err: errors.New("redis down")}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RateLimit(tt.l, nil))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
