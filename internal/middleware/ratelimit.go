package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucket is the per-client token bucket. Tokens refill lazily on each
// request from the time elapsed since lastRefill.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// rateLimiterState is shared by every request passing one RateLimiter.
type rateLimiterState struct {
	buckets sync.Map // client IP -> *bucket
	rate    float64  // tokens added per second
	burst   int      // bucket capacity
	done    chan struct{}
}

// healthCheckPaths are exempt from rate limiting so liveness probes
// never get throttled away.
var healthCheckPaths = map[string]bool{
	"/api/v1/health": true,
	"/healthz":       true,
	"/readyz":        true,
	"/livez":         true,
	"/health":        true,
	"/ready":         true,
	"/ping":          true,
}

// allow refills the IP's bucket and tries to take one token. It reports
// whether the request may pass, plus the remaining tokens and the limit
// for the response headers.
func (s *rateLimiterState) allow(ip string) (bool, int, int) {
	val, _ := s.buckets.LoadOrStore(ip, &bucket{
		tokens:     float64(s.burst),
		lastRefill: time.Now(),
	})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * s.rate
	if b.tokens > float64(s.burst) {
		b.tokens = float64(s.burst)
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		remaining := int(math.Floor(b.tokens))
		return true, remaining, s.burst
	}

	return false, 0, s.burst
}

// retryAfter reports whole seconds until the IP's bucket holds one
// token again. Unknown IPs get 1 rather than 0 so clients still back
// off briefly.
func (s *rateLimiterState) retryAfter(ip string) int {
	val, ok := s.buckets.Load(ip)
	if !ok {
		return 1
	}
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokens >= 1.0 {
		return 0
	}

	deficit := 1.0 - b.tokens
	seconds := deficit / s.rate
	return int(math.Ceil(seconds))
}

// startCleanup drops buckets idle for 10 minutes so one-off clients do
// not accumulate forever. An evicted IP simply starts over with a full
// bucket.
func (s *rateLimiterState) startCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				staleThreshold := time.Now().Add(-10 * time.Minute)
				s.buckets.Range(func(key, value any) bool {
					b := value.(*bucket)
					b.mu.Lock()
					if b.lastRefill.Before(staleThreshold) {
						b.mu.Unlock()
						s.buckets.Delete(key)
					} else {
						b.mu.Unlock()
					}
					return true
				})
			case <-s.done:
				return
			}
		}
	}()
}

// RateLimiter throttles requests per client IP with a token bucket:
// rate tokens per second sustained, bursts up to burst requests. A
// single-tenant bookkeeping API needs no more granularity than that.
// Rejected requests get 429 with Retry-After set.
func RateLimiter(rate float64, burst int) func(http.Handler) http.Handler {
	state := &rateLimiterState{
		rate:  rate,
		burst: burst,
		done:  make(chan struct{}),
	}
	state.startCleanup()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthCheckPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ip := extractIP(r)

			allowed, remaining, limit := state.allow(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retryAfter := state.retryAfter(ip)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				resp := map[string]string{
					"error":   "rate limit exceeded",
					"message": "Too many requests. Please try again later.",
				}
				json.NewEncoder(w).Encode(resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP picks the client IP the limiter keys on: the leftmost
// X-Forwarded-For entry when a reverse proxy forwarded the request,
// then X-Real-IP, then RemoteAddr without the port.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
