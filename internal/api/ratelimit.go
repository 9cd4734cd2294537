package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
)

// maxLimiters bounds the per-client limiter table. The table is reset when
// it grows past this size.
const maxLimiters = 10000

// rateLimiter applies a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// getLimiter returns the limiter for key, creating it on first use.
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler rejects requests over the client's budget with 429.
func (rl *rateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.getLimiter(key).Allow() {
			klog.API.Debug().Str("remote", key).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Reason: reasonRateLimited, Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
