package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bustrack/internal/models"
	"bustrack/internal/service"
)

const sessionKey = "session"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Session, error)
}

// SessionToken returns the session cookie, or a bearer token for clients
// that cannot hold cookies.
func SessionToken(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// Session resolves the caller's session when one is presented. Requests
// without a valid session continue anonymously.
func Session(cookieName string, auth Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.Next()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(sessionKey, session)
		case errors.Is(err, service.ErrUnauthenticated):
		default:
			log.Error().Err(err).Msg("session lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		c.Next()
	}
}

func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Next()
	}
}

func CurrentSession(c *gin.Context) (*models.Session, bool) {
	v, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}
	session, ok := v.(models.Session)
	if !ok {
		return nil, false
	}
	return &session, true
}
