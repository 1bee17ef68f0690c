package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
	loggerKey       = "request_logger"
)

// RequestID tags the request with an id, reusing the caller's when sent,
// and attaches a logger carrying it. The logger is also stored on the
// request context for code below the handlers.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		reqLog := log.With().Str(requestIDKey, requestID).Logger()
		c.Set(requestIDKey, requestID)
		c.Set(loggerKey, reqLog)
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}

// RequestLogger returns the logger RequestID attached, or fallback when
// the request did not pass through it.
func RequestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}
