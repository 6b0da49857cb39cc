package oauth

import (
	"net/http"
	"sync"
	"time"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

// RateLimiter implements a per-IP token bucket rate limiter for the
// browser-facing OAuth endpoints.
type RateLimiter struct {
	mu         sync.RWMutex
	limiters   map[string]*bucket
	rate       int // tokens per second
	burst      int // max burst size
	trustProxy bool

	cleanupInterval time.Duration
	logger          logging.Logger
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(rate, burst int, trustProxy bool, cleanupInterval time.Duration, logger logging.Logger) *RateLimiter {
	if rate <= 0 {
		rate = DefaultRateLimitRate
	}
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultRateLimitCleanupInterval
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	rl := &RateLimiter{
		limiters:        make(map[string]*bucket),
		rate:            rate,
		burst:           burst,
		trustProxy:      trustProxy,
		cleanupInterval: cleanupInterval,
		logger:          logger,
		stopCleanup:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from the given IP may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.RLock()
	b, exists := rl.limiters[ip]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if b, exists = rl.limiters[ip]; !exists {
			b = &bucket{tokens: float64(rl.burst), lastUpdate: time.Now()}
			rl.limiters[ip] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * float64(rl.rate)
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware enforces the rate limit on an HTTP handler.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r, rl.trustProxy)
		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, ErrInvalidRequest("rate limit exceeded"), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.removeInactive()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) removeInactive() {
	cutoff := time.Now().Add(-InactiveLimiterWindow)

	rl.mu.RLock()
	var stale []string
	for ip, b := range rl.limiters {
		b.mu.Lock()
		if b.lastUpdate.Before(cutoff) {
			stale = append(stale, ip)
		}
		b.mu.Unlock()
	}
	rl.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, ip := range stale {
		if b, ok := rl.limiters[ip]; ok {
			b.mu.Lock()
			inactive := b.lastUpdate.Before(cutoff)
			b.mu.Unlock()
			if inactive {
				delete(rl.limiters, ip)
			}
		}
	}
}
