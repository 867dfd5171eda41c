package httpapi

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/corvuslabs/notebase/internal/metrics"
)

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	name    string
	rate    rate.Limit
	burst   int
	buckets sync.Map
}

func NewRateLimiter(name string, r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{name: name, rate: r, burst: burst}
}

func (l *RateLimiter) bucket(ip string) *rate.Limiter {
	if v, ok := l.buckets.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.buckets.LoadOrStore(ip, rate.NewLimiter(l.rate, l.burst))
	return v.(*rate.Limiter)
}

// Middleware rejects over-limit requests with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.bucket(clientIP(r)).Allow() {
			metrics.RateLimitRejected.WithLabelValues(l.name).Inc()
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(l.name).Inc()
		next.ServeHTTP(w, r)
	})
}
