package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window. Zero disables limiting.
	Max int

	Window time.Duration

	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string

	now func() time.Time
}

// window counts requests in the current and the previous fixed window. The
// previous count is weighted by its overlap with the sliding window.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type limiter struct {
	max    float64
	size   time.Duration
	key    func(*http.Request) string
	now    func() time.Time
	mu     sync.Mutex
	admits map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		max:    float64(cfg.Max),
		size:   cfg.Window,
		key:    cfg.KeyFunc,
		now:    cfg.now,
		admits: make(map[string]*window),
	}
	if l.key == nil {
		l.key = ClientIP
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// take admits one request from key. It returns the remaining budget and the
// end of the current window.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	w, found := l.admits[key]
	switch {
	case !found:
		w = &window{currStart: start}
		l.admits[key] = w
	case start.Sub(w.currStart) >= 2*l.size:
		w.prev, w.curr, w.currStart = 0, 0, start
	case !start.Equal(w.currStart):
		w.prev, w.curr, w.currStart = w.curr, 0, start
	}

	overlap := 1 - float64(now.Sub(w.currStart))/float64(l.size)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.currStart.Add(l.size)
	if used >= l.max {
		return 0, reset, false
	}
	w.curr++
	return int(math.Max(l.max-used-1, 0)), reset, true
}

// evict drops clients idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.admits {
		if now.Sub(w.currStart) >= 2*l.size {
			delete(l.admits, key)
		}
	}
}

func (l *limiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.admits)
}

// RateLimitWithCleanup rejects clients over their budget with 429 and sets
// X-RateLimit-* headers on every response. Idle clients are evicted every
// two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.size)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict(l.now())
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(int(l.max))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := l.now()
		key := l.key(r)
		remaining, reset, ok := l.take(key, now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			retry := math.Ceil(math.Max(reset.Sub(now).Seconds(), 0))
			h.Set("Retry-After", strconv.Itoa(int(retry)))
			zctx.From(r.Context()).Warn("Rate limit exceeded", zap.String("client", key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
