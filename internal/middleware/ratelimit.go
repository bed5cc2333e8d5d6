package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"challenge-chat/internal/observability"
)

// WriteLimiter hands out one token bucket per caller. Buckets idle for longer
// than idleTTL are swept on a later lookup.
type WriteLimiter struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const minIdleTTL = 10 * time.Minute

// NewWriteLimiter builds a limiter pool. Non-positive values fall back to
// 5 req/s with a burst of 10.
func NewWriteLimiter(rps float64, burst int) *WriteLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	// a bucket is only dropped once it would have refilled anyway
	idle := time.Duration(float64(burst) / rps * float64(time.Second))
	if idle < minIdleTTL {
		idle = minIdleTTL
	}
	return &WriteLimiter{
		m:       make(map[string]*limiterEntry),
		rps:     rps,
		burst:   burst,
		idleTTL: idle,
		now:     time.Now,
	}
}

func (p *WriteLimiter) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) >= p.idleTTL {
		p.sweepLocked(now)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	e := &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst), lastSeen: now}
	p.m[key] = e
	return e.limiter
}

func (p *WriteLimiter) sweepLocked(now time.Time) {
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.idleTTL {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

// Len reports how many callers currently hold a bucket.
func (p *WriteLimiter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Allow reports whether key may perform another write now.
func (p *WriteLimiter) Allow(key string) bool {
	return p.get(key).Allow()
}

// RateLimit rejects writes over the caller's budget with 429. Authenticated
// callers are keyed by user id, anonymous ones by client IP.
func RateLimit(limiter *WriteLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID := c.GetInt64("userID"); userID != 0 {
			key = "user:" + strconv.FormatInt(userID, 10)
		}
		if !limiter.Allow(key) {
			observability.IncRateLimited(c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
