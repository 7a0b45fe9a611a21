package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func fromTill(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimitWithCleanup(t.Context(), RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, fromTill("192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	h := RateLimitWithCleanup(t.Context(), RateLimitConfig{Max: 2, Window: time.Minute, now: clock.Now})(okHandler())

	for _, want := range []string{"1", "0"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, fromTill("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, fromTill("10.0.0.1:9999"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, http.StatusTooManyRequests, body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])

	// Another till keeps its own budget.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, fromTill("10.0.0.2:9999"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute, now: clock.Now})

	for range 4 {
		_, _, ok := l.take("till", clock.now)
		require.True(t, ok)
	}
	_, _, ok := l.take("till", clock.now)
	require.False(t, ok)

	// Halfway into the next window half of the previous count still applies.
	clock.now = clock.now.Add(90 * time.Second)
	for range 2 {
		_, _, ok = l.take("till", clock.now)
		require.True(t, ok)
	}
	_, _, ok = l.take("till", clock.now)
	assert.False(t, ok)

	// Two idle windows reset the client.
	clock.now = clock.now.Add(3 * time.Minute)
	remaining, _, ok := l.take("till", clock.now)
	require.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestRateLimit_Evict(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	l.take("a", now)
	l.take("b", now.Add(time.Minute))

	l.evict(now.Add(2 * time.Minute))
	assert.Equal(t, 1, l.clients())
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimitWithCleanup(t.Context(), RateLimitConfig{Window: time.Minute})(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, fromTill("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.7:5050", want: "10.0.0.7"},
		{name: "remote without port", remote: "10.0.0.7", want: "10.0.0.7"},
		{name: "forwarded", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "10.0.0.1:1", want: "203.0.113.9"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.1:1", want: "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
