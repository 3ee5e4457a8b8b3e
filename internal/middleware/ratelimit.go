package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepTick = time.Minute
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a per-client limiter. A non-positive rate disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:       cfg,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether the client may make a request now
func (r *RateLimiter) Allow(client string) bool {
	if r.cfg.RequestsPerSecond <= 0 {
		return true
	}

	r.mu.Lock()
	now := r.now()
	if now.Sub(r.lastSweep) > limiterSweepTick {
		for key, cl := range r.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(r.clients, key)
			}
		}
		r.lastSweep = now
	}

	cl, ok := r.clients[client]
	if !ok {
		burst := r.cfg.BurstSize
		if burst < 1 {
			burst = 1
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), burst)}
		r.clients[client] = cl
	}
	cl.lastSeen = now
	r.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client exhausts its bucket
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			retry := 1
			if r.cfg.RequestsPerSecond > 0 && r.cfg.RequestsPerSecond < 1 {
				retry = int(1/r.cfg.RequestsPerSecond) + 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
