package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bustrack/internal/ratelimit"
)

// RateLimit throttles by client IP under the given key scope.
func RateLimit(limiter ratelimit.Limiter, scope string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, admitting")
			c.Next()
			return
		}
		if !decision.Allowed {
			if secs := int(decision.RetryAfter.Seconds()); secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
