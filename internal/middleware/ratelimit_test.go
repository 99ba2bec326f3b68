package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler stands in for the API behind the limiter.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestRateLimiter_RequestsWithinLimitPass(t *testing.T) {
	limiter := RateLimiter(10, 10)
	handler := limiter(okHandler)

	// The whole burst passes.
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i+1, w.Code)
		}

		if w.Header().Get("X-RateLimit-Limit") == "" {
			t.Error("missing X-RateLimit-Limit header")
		}
		if w.Header().Get("X-RateLimit-Remaining") == "" {
			t.Error("missing X-RateLimit-Remaining header")
		}
	}
}

func TestRateLimiter_RequestsExceedingLimitGet429(t *testing.T) {
	limiter := RateLimiter(5, 5)
	handler := limiter(okHandler)

	// Exhaust the burst.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 during burst, got %d", i+1, w.Code)
		}
	}

	// The sixth request runs the bucket dry.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429 after burst, got %d", w.Code)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429 response")
	}

	// The 429 body is JSON with an error field.
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 429 response body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("expected error 'rate limit exceeded', got %q", body["error"])
	}
}

func TestRateLimiter_DifferentIPsHaveSeparateLimits(t *testing.T) {
	limiter := RateLimiter(1, 2)
	handler := limiter(okHandler)

	// First client burns its burst of two.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
		req.RemoteAddr = "10.0.0.1:1111"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("IP1 request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	// Its third request is rejected.
	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req1.RemoteAddr = "10.0.0.1:1111"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)

	if w1.Code != http.StatusTooManyRequests {
		t.Errorf("IP1 3rd request: expected 429, got %d", w1.Code)
	}

	// A second client keeps its own full bucket.
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req2.RemoteAddr = "10.0.0.2:2222"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("IP2 first request: expected 200, got %d", w2.Code)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	// At 10 tokens/sec an empty burst-2 bucket refills in 200ms.
	limiter := RateLimiter(10, 2)
	handler := limiter(okHandler)

	ip := "172.16.0.1:5555"

	// Exhaust the burst.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("initial request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	// Bucket is empty.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}

	// One token refills in 100ms; 250ms leaves margin.
	time.Sleep(250 * time.Millisecond)

	// Refilled.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = ip
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after token refill, got %d", w.Code)
	}
}

func TestRateLimiter_BurstAllowsInitialSpike(t *testing.T) {
	// A slow rate with a wide burst admits the spike up front.
	limiter := RateLimiter(1, 20)
	handler := limiter(okHandler)

	ip := "10.10.10.10:8080"

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("burst request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	// Request 21 exceeds the burst.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request after burst: expected 429, got %d", w.Code)
	}
}

func TestRateLimiter_HealthCheckEndpointsAreExempt(t *testing.T) {
	limiter := RateLimiter(0.1, 1)
	handler := limiter(okHandler)

	ip := "192.168.0.1:1234"

	// Burn the single token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req.RemoteAddr = ip
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for regular endpoint, got %d", w.Code)
	}

	// Probe paths bypass the empty bucket.
	healthPaths := []string{"/api/v1/health", "/healthz", "/readyz", "/livez", "/health", "/ready", "/ping"}
	for _, path := range healthPaths {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("health check %s: expected 200, got %d", path, w.Code)
		}

		// Exempt paths carry no limit headers.
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Errorf("health check %s: should not have X-RateLimit-Limit header", path)
		}
	}
}

func TestRateLimiter_XForwardedForHeader(t *testing.T) {
	limiter := RateLimiter(1, 1)
	handler := limiter(okHandler)

	// RemoteAddr is shared; the forwarded header tells the clients apart.
	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req1.RemoteAddr = "127.0.0.1:1234"
	req1.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)

	if w1.Code != http.StatusOK {
		t.Fatalf("first request from 203.0.113.1: expected 200, got %d", w1.Code)
	}

	// Same forwarded client, bucket already empty.
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req2.RemoteAddr = "127.0.0.1:1234"
	req2.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)

	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request from 203.0.113.1: expected 429, got %d", w2.Code)
	}

	// A different forwarded client gets its own bucket.
	req3 := httptest.NewRequest(http.MethodGet, "/api/v1/income", nil)
	req3.RemoteAddr = "127.0.0.1:1234"
	req3.Header.Set("X-Forwarded-For", "203.0.113.2")
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, req3)

	if w3.Code != http.StatusOK {
		t.Errorf("request from 203.0.113.2: expected 200, got %d", w3.Code)
	}
}

func TestRetryAfter_UnknownIP_Returns1(t *testing.T) {
	state := &rateLimiterState{
		rate:  10,
		burst: 10,
		done:  make(chan struct{}),
	}

	// Unknown IPs still get a minimal backoff.
	got := state.retryAfter("unknown-ip")
	if got != 1 {
		t.Errorf("retryAfter for unknown IP: got %d, want 1", got)
	}
}

func TestRetryAfter_TokensAvailable_Returns0(t *testing.T) {
	state := &rateLimiterState{
		rate:  10,
		burst: 10,
		done:  make(chan struct{}),
	}

	// The first request creates the bucket and takes one token.
	allowed, _, _ := state.allow("10.0.0.1")
	if !allowed {
		t.Fatal("expected first request to be allowed")
	}

	// Tokens remain, no wait needed.
	got := state.retryAfter("10.0.0.1")
	if got != 0 {
		t.Errorf("retryAfter with tokens available: got %d, want 0", got)
	}
}

func TestRetryAfter_NoTokens_ReturnsPositive(t *testing.T) {
	state := &rateLimiterState{
		rate:  1, // 1 token per second
		burst: 1,
		done:  make(chan struct{}),
	}

	// Burn the single token.
	state.allow("10.0.0.2")

	// Empty bucket at 1 token/sec means about a second of waiting.
	got := state.retryAfter("10.0.0.2")
	if got < 1 {
		t.Errorf("retryAfter with no tokens: got %d, want >= 1", got)
	}
}

func TestStartCleanup_RemovesStaleBuckets(t *testing.T) {
	state := &rateLimiterState{
		rate:  10,
		burst: 10,
		done:  make(chan struct{}),
	}

	// One bucket idle past the eviction threshold, one in use.
	staleBucket := &bucket{
		tokens:     10,
		lastRefill: time.Now().Add(-20 * time.Minute),
	}
	state.buckets.Store("stale-ip", staleBucket)

	freshBucket := &bucket{
		tokens:     5,
		lastRefill: time.Now(),
	}
	state.buckets.Store("fresh-ip", freshBucket)

	// Run one eviction sweep by hand instead of waiting on the ticker.
	staleThreshold := time.Now().Add(-10 * time.Minute)
	state.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if b.lastRefill.Before(staleThreshold) {
			b.mu.Unlock()
			state.buckets.Delete(key)
		} else {
			b.mu.Unlock()
		}
		return true
	})

	if _, ok := state.buckets.Load("stale-ip"); ok {
		t.Error("expected stale bucket to be removed")
	}

	if _, ok := state.buckets.Load("fresh-ip"); !ok {
		t.Error("expected fresh bucket to remain")
	}
}

func TestStartCleanup_StopsOnDoneSignal(t *testing.T) {
	state := &rateLimiterState{
		rate:  10,
		burst: 10,
		done:  make(chan struct{}),
	}

	state.startCleanup()

	// Closing done must stop the cleanup goroutine.
	close(state.done)

	// A stuck goroutine would trip the test timeout.
}

func TestRateLimiter_429ResponseContentType(t *testing.T) {
	limiter := RateLimiter(1, 1)
	handler := limiter(okHandler)

	ip := "10.99.99.99:1234"

	// Exhaust the burst.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/vat", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/vat", nil)
	req.RemoteAddr = ip
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON body: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected non-empty message in 429 response body")
	}
}

func TestExtractIP_XForwardedFor_EmptyFirstEntry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("X-Forwarded-For", " , 10.0.0.1")

	got := extractIP(req)
	// A blank first entry falls through to X-Real-IP and RemoteAddr.
	if got != "192.168.1.1" {
		t.Errorf("extractIP with empty XFF first entry: got %q, want %q", got, "192.168.1.1")
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		wantIP     string
	}{
		{
			name:       "plain RemoteAddr with port",
			remoteAddr: "192.168.1.1:12345",
			wantIP:     "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For single IP",
			remoteAddr: "127.0.0.1:80",
			xff:        "203.0.113.50",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "X-Forwarded-For multiple IPs takes first",
			remoteAddr: "127.0.0.1:80",
			xff:        "203.0.113.50, 70.41.3.18, 150.172.238.178",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "X-Real-IP used when no X-Forwarded-For",
			remoteAddr: "127.0.0.1:80",
			xRealIP:    "198.51.100.22",
			wantIP:     "198.51.100.22",
		},
		{
			name:       "X-Forwarded-For takes priority over X-Real-IP",
			remoteAddr: "127.0.0.1:80",
			xff:        "203.0.113.50",
			xRealIP:    "198.51.100.22",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.1",
			wantIP:     "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := extractIP(req)
			if got != tt.wantIP {
				t.Errorf("extractIP: want %q, got %q", tt.wantIP, got)
			}
		})
	}
}
