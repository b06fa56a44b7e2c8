package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/pkg/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows limit requests per window for each client IP. Tokens
// refill evenly across the window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter creates a limiter. Call Run to evict idle clients.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		every := rl.window / time.Duration(max(rl.limit, 1))
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.limit)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Run evicts clients idle for longer than the window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// Middleware rejects over-limit requests with 429 and the given body.
func (rl *RateLimiter) Middleware(title, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			w.Header().Set("RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", rl.limit, int(rl.window.Seconds())))

			if !rl.Allow(ip) {
				logging.FromContext(r.Context()).Warn("rate limit exceeded",
					slog.String("ip", ip), slog.Int("limit", rl.limit), slog.Duration("window", rl.window))
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				utils.RespondError(w, http.StatusTooManyRequests, title, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the key the limiters count by. It relies on chi's RealIP having
// rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
