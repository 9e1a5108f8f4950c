package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks request counts from one IP within the current window.
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter enforces a per-IP sliding window on job submissions.
type RateLimiter struct {
	mu           sync.Mutex
	windows      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
}

var submitRateLimiter *RateLimiter

// InitSubmitRateLimiter initializes the global submission rate limiter.
func InitSubmitRateLimiter() {
	submitRateLimiter = NewRateLimiter(60, time.Minute)
	go submitRateLimiter.startCleanup()
}

// NewRateLimiter creates a rate limiter allowing maxRequests per
// windowPeriod from each IP.
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, w := range rl.windows {
		if now.Sub(w.FirstAt) > rl.windowPeriod {
			delete(rl.windows, ip)
		}
	}
}

// Allow records a request from ip and reports whether it is within the
// window. The second return value is the remaining quota.
func (rl *RateLimiter) Allow(ip string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.windows[ip]
	if !exists || now.Sub(w.FirstAt) > rl.windowPeriod {
		rl.windows[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, rl.maxRequests - 1
	}

	if w.Count >= rl.maxRequests {
		return false, 0
	}
	w.Count++
	return true, rl.maxRequests - w.Count
}

// SubmitRateLimitMiddleware limits job submissions per client IP. Reads
// pass through untouched.
func SubmitRateLimitMiddleware() gin.HandlerFunc {
	if submitRateLimiter == nil {
		InitSubmitRateLimiter()
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, remaining := submitRateLimiter.Allow(ip)
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many submissions, slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
