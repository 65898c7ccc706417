package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops a client's limiter after this long without requests
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet tracks one token bucket per client key
type limiterSet struct {
	cfg   RateLimitConfig
	now   func() time.Time
	mu    sync.Mutex
	seen  map[string]*clientLimiter
	swept time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &limiterSet{cfg: cfg, now: time.Now, seen: make(map[string]*clientLimiter)}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.swept) >= s.cfg.IdleTTL {
		for k, cl := range s.seen {
			if now.Sub(cl.lastSeen) >= s.cfg.IdleTTL {
				delete(s.seen, k)
			}
		}
		s.swept = now
	}

	cl, ok := s.seen[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.seen[key] = cl
	}
	cl.lastSeen = now
	limiter := cl.limiter
	s.mu.Unlock()

	return limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":  "rate limit exceeded",
		"status": http.StatusTooManyRequests,
	})
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg)
	return func(c *gin.Context) {
		if !set.allow(c.ClientIP()) {
			tooMany(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			tooMany(c)
			return
		}
		c.Next()
	}
}
