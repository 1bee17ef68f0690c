package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into the API's standard failure body.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			reqLog := RequestLogger(c, log)
			event := reqLog.Error().
				Interface("panic", r).
				Str("route", c.FullPath()).
				Bytes("stack", debug.Stack())
			if session, ok := CurrentSession(c); ok {
				event = event.Str("rider_id", session.RiderID)
			}
			event.Msg("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "internal server error",
			})
		}()
		c.Next()
	}
}
