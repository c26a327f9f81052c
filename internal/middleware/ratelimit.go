package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gpx-loop-cutter/pkg/response"
)

// RateLimiter implements a sliding window limit per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // Maximum requests per window
	window   time.Duration // Time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) recent(times []time.Time, now time.Time) []time.Time {
	valid := times[:0]
	for _, t := range times {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}
	return valid
}

// Allow checks if a request from the given client is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.recent(rl.requests[key], now)
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)

	// keep the map bounded without a background goroutine
	if len(rl.requests) > 4096 {
		for k, times := range rl.requests {
			if len(rl.recent(times, now)) == 0 {
				delete(rl.requests, k)
			}
		}
	}
	return true
}

// RateLimit middleware limits requests per client IP. limit <= 0 disables it.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(limit, window)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
