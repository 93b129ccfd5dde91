package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps a token bucket per client IP. Buckets of idle clients expire.
type IPRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
	idle     time.Duration
}

// NewIPRateLimiter creates a limiter allowing r requests per second with burst b per IP.
func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
		idle:     idle,
	}
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if v, ok := i.limiters.Get(ip); ok {
		limiter := v.(*rate.Limiter)
		i.limiters.Set(ip, limiter, i.idle)
		return limiter
	}
	limiter := rate.NewLimiter(i.r, i.b)
	i.limiters.Set(ip, limiter, i.idle)
	return limiter
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
