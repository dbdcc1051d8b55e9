package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowIsPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)
	defer l.Stop()

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatalf("burst not honored")
	}
	if l.Allow("10.0.0.1") {
		t.Errorf("third request should be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Errorf("other IP should have its own bucket")
	}
}

func TestPruneDropsFullBuckets(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)
	defer l.Stop()

	l.GetLimiter("10.0.0.1")
	l.Allow("10.0.0.2")

	removed, remaining := l.prune(time.Now())
	if removed != 1 || remaining != 1 {
		t.Errorf("prune = %d removed, %d remaining, want 1/1", removed, remaining)
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)
	defer l.Stop()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = "192.0.2.1:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Errorf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "192.0.2.1:4000"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q", got)
	}

	req.RemoteAddr = ""
	if got := ClientIP(req); got != "unknown_ip" {
		t.Errorf("ClientIP = %q, want unknown_ip", got)
	}
}
