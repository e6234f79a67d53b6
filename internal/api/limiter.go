package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"circleburo/internal/config"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim      *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (e *limiterEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *limiterEntry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

// rateLimiter лимит запросов публичного API на IP клиента.
type rateLimiter struct {
	limiters sync.Map // map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &rateLimiter{rps: rate.Limit(cfg.RPS), burst: burst}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	if v, ok := l.limiters.Load(key); ok {
		entry := v.(*limiterEntry)
		entry.touch(now)
		return entry.lim
	}

	entry := &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst), lastSeen: now}
	actual, _ := l.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry).lim
}

// Sweep удаляет лимитеры клиентов, не приходивших дольше idle.
func (l *rateLimiter) Sweep(idle time.Duration) int {
	now := time.Now()
	removed := 0
	l.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).idleSince(now) > idle {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Run периодически чистит лимитеры до отмены ctx.
func (l *rateLimiter) Run(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}

func (l *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.rps <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.getLimiter(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
