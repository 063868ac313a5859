package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkflow/backend/internal/infrastructure/ratelimit"
)

// RateLimitMiddleware throttles requests per caller across all server
// instances sharing the counter store. The key is the authenticated
// tenant ID when present, else the client IP, so unauthenticated traffic
// cannot burn a tenant's budget.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetJWTTenantID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		decision := limiter.Admit(c.Request.Context(), key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many requests, slow down",
				},
			})
			return
		}

		c.Next()
	}
}
