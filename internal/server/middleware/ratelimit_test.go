package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/garrettladley/payhook/internal/storage"
)

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := storage.NewMemoryRateLimiter(1, 2)
	t.Cleanup(func() { _ = limiter.Close() })

	h := RateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/checkout/sessions", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := do(http.MethodPost); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := do(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := rec.Header().Get("X-RateLimit-Reason"); got != "ip_rate_limit" {
		t.Errorf("X-RateLimit-Reason = %q", got)
	}

	if rec := do(http.MethodOptions); rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()

	limiter := storage.NewMemoryRateLimiter(1, 1)
	t.Cleanup(func() { _ = limiter.Close() })

	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	h := RateLimit(limiter, trusted)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout/sessions", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// a direct client rotating the header is still one address
	if code := do("203.0.113.7:5555", "198.51.100.1"); code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", code)
	}
	if code := do("203.0.113.7:5555", "198.51.100.2"); code != http.StatusTooManyRequests {
		t.Errorf("spoofed request status = %d, want 429", code)
	}

	// behind the load balancer each forwarded client has its own bucket
	if code := do("10.0.0.5:443", "198.51.100.3"); code != http.StatusOK {
		t.Errorf("proxied client status = %d, want 200", code)
	}
	if code := do("10.0.0.5:443", "198.51.100.4"); code != http.StatusOK {
		t.Errorf("second proxied client status = %d, want 200", code)
	}
}
