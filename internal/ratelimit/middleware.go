package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// IdentifierFunc picks the identifier a request is limited under.
type IdentifierFunc func(c *gin.Context) string

// ClientIP limits per client address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// OwnerOrIP limits per X-Owner-ID when present, otherwise per client address.
func OwnerOrIP(c *gin.Context) string {
	if owner := c.GetHeader("X-Owner-ID"); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + c.ClientIP()
}

// Middleware rejects requests over the rule with 429 and a Retry-After header.
func (l *Limiter) Middleware(operation string, rule Rule, identify IdentifierFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Check(c.Request.Context(), operation, identify(c), rule)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		if !d.Allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": d.RetryAfter,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Next()
	}
}
