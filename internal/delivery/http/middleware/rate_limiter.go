package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pybox/internal/metrics"
)

// windowEntry tracks request counts for one client IP within the current window.
type windowEntry struct {
	count     int
	windowTop time.Time
}

// RateLimiter returns a middleware that enforces per-IP rate limiting over a
// fixed one-minute window. maxRequests is the number of requests allowed per
// minute per IP.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*windowEntry)

	// Drop idle entries so the map does not grow with one-off clients.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, entry := range clients {
				if now.Sub(entry.windowTop) > 2*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()

		entry, exists := clients[ip]
		now := time.Now()

		if !exists || now.Sub(entry.windowTop) > time.Minute {
			clients[ip] = &windowEntry{count: 1, windowTop: now}
			mu.Unlock()
			c.Next()
			return
		}

		if entry.count >= maxRequests {
			mu.Unlock()
			metrics.RequestsRejected.WithLabelValues("rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Maximum " + strconv.Itoa(maxRequests) + " requests per minute.",
			})
			return
		}

		entry.count++
		mu.Unlock()
		c.Next()
	}
}
