package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("writes")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	now = now.Add(time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected a refilled token after one second, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesGroupsAndClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"reads":  {RequestsPerMinute: 1, Burst: 1},
		"writes": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	reads := limiter.Middleware("reads")(okHandler())
	writes := limiter.Middleware("writes")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vaults/1", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	for _, h := range []http.Handler{reads, writes} {
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected first request per group to succeed, got %d", res.Code)
		}
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/vaults/1", nil)
	other.Header.Set("X-Real-IP", "10.0.0.9")
	res := httptest.NewRecorder()
	reads.ServeHTTP(res, other)
	if res.Code != http.StatusOK {
		t.Fatalf("expected a different client to have its own bucket, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	reads.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected repeated read to be limited, got %d", res.Code)
	}
}

func TestRateLimiterIgnoresUnconfiguredGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"reads": {}}, nil)
	for _, key := range []string{"reads", "other"} {
		handler := limiter.Middleware(key)(okHandler())
		for i := 0; i < 3; i++ {
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
			if res.Code != http.StatusOK {
				t.Fatalf("group %s: unexpected status %d", key, res.Code)
			}
		}
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("unexpected remote client id %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.5" {
		t.Fatalf("unexpected forwarded client id %q", got)
	}
}
