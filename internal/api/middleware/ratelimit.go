package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/NageshMashette/execpool/internal/logger"
)

// tokenBucket is a classic token-bucket limiter: capacity tokens
// refilled continuously at rate tokens/sec, one token spent per
// admitted request.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64
	lastRefill time.Time
}

func newTokenBucket(rps int) *tokenBucket {
	if rps <= 0 {
		rps = 1000
	}
	return &tokenBucket{
		tokens:     float64(rps),
		capacity:   float64(rps),
		rate:       float64(rps),
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"too many requests","message":"rate limit exceeded"}`))
}

// RateLimit enforces a single shared request budget across every
// caller, suitable for protecting the admin API as a whole regardless
// of who's asking.
func RateLimit(rps int) func(http.Handler) http.Handler {
	bucket := newTokenBucket(rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bucket.allow() {
				logger.Get().Warn().Str("method", r.Method).Str("path", r.URL.Path).Msg("rate limit exceeded")
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// perClientLimiter hands out an independent tokenBucket per client
// identifier, periodically forgetting all of them rather than tracking
// last-seen times per entry — acceptable here since the admin API's
// caller population is small and a full reset just means one bucket
// refills a little earlier than it otherwise would.
type perClientLimiter struct {
	mu          sync.RWMutex
	buckets     map[string]*tokenBucket
	rps         int
	forgetEvery time.Duration
}

func newPerClientLimiter(rps int) *perClientLimiter {
	pcl := &perClientLimiter{
		buckets:     make(map[string]*tokenBucket),
		rps:         rps,
		forgetEvery: 5 * time.Minute,
	}
	go pcl.forgetLoop()
	return pcl
}

func (pcl *perClientLimiter) forgetLoop() {
	ticker := time.NewTicker(pcl.forgetEvery)
	defer ticker.Stop()
	for range ticker.C {
		pcl.mu.Lock()
		pcl.buckets = make(map[string]*tokenBucket)
		pcl.mu.Unlock()
	}
}

func (pcl *perClientLimiter) bucketFor(clientID string) *tokenBucket {
	pcl.mu.RLock()
	b, ok := pcl.buckets[clientID]
	pcl.mu.RUnlock()
	if ok {
		return b
	}

	pcl.mu.Lock()
	defer pcl.mu.Unlock()
	if b, ok = pcl.buckets[clientID]; ok {
		return b
	}
	b = newTokenBucket(pcl.rps)
	pcl.buckets[clientID] = b
	return b
}

func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// ClientRateLimit enforces a separate budget per caller, identified by
// X-Forwarded-For or RemoteAddr, so one noisy client can't starve
// everyone else's share of the admin API.
func ClientRateLimit(rps int) func(http.Handler) http.Handler {
	limiter := newPerClientLimiter(rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIdentity(r)
			if !limiter.bucketFor(client).allow() {
				logger.Get().Warn().Str("method", r.Method).Str("path", r.URL.Path).Str("client", client).Msg("client rate limit exceeded")
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
