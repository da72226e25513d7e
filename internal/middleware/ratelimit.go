package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"sessionkeeper-go/internal/monitoring"
)

// clientIdle is how long a client's bucket outlives its last request.
const clientIdle = 15 * time.Minute

// RateLimiter allows limit requests per second per client IP with the given
// burst. A non-positive limit lets everything through.
func RateLimiter(limit rate.Limit, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	buckets := cache.New(clientIdle, 2*time.Minute)
	var mu sync.Mutex
	bucket := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := buckets.Get(ip); ok {
			buckets.SetDefault(ip, v)
			return v.(*rate.Limiter)
		}
		lim := rate.NewLimiter(limit, burst)
		buckets.SetDefault(ip, lim)
		return lim
	}

	return func(c *gin.Context) {
		if bucket(c.ClientIP()).Allow() {
			c.Next()
			return
		}
		monitoring.RateLimitedTotal.Inc()
		c.Header("Retry-After", "10")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}
}
