package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/swpuclaylee/APIFlask/internal/metrics"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
)

// idleBucketTTL is how long an unused client bucket is kept.
const idleBucketTTL = 5 * time.Minute

// RateLimiter is a token bucket per client IP. Buckets are guarded by a mutex and swept lazily.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int
	clock     clock.Clock
	metrics   *metrics.Metrics

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst. clk may be nil.
func NewRateLimiter(perSecond float64, burst int, clk clock.Clock, m *metrics.Metrics) *RateLimiter {
	if clk == nil {
		clk = clock.WallClock
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		clock:     clk,
		metrics:   m,
		buckets:   make(map[string]*bucket),
		lastSweep: clk.Now(),
	}
}

// Allow consumes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleBucketTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > idleBucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects requests over the client's budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r.Context())
		if ip == "unknown" {
			ip = peerAddr(r)
		}
		if !l.Allow(ip) {
			l.metrics.RateLimited(routeTemplate(r))
			w.Header().Set("Retry-After", "1")
			httputil.WriteFailure(w, http.StatusTooManyRequests, "Too many requests, please try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
