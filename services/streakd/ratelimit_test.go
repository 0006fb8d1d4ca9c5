package streakd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{RouteGroupRuns: {RequestsPerMinute: 1, Burst: 2}}, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(RouteGroupRuns)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.2"))

	now = now.Add(time.Minute)
	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
}

func TestRateLimiterUnlimitedGroup(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{}, nil)
	handler := limiter.Middleware(RouteGroupRead)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	require.True(t, limiter.allow("runs|a", RateLimit{RequestsPerMinute: 60, Burst: 1}))
	require.Len(t, limiter.visitors, 1)
	now = now.Add(10 * time.Minute)
	require.True(t, limiter.allow("runs|b", RateLimit{RequestsPerMinute: 60, Burst: 1}))
	require.Len(t, limiter.visitors, 1)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "192.0.2.1", clientID(req))
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", clientID(req))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientID(req))
}
