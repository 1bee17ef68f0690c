package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/models"
)

func RequireRoles(roles ...models.RiderRole) gin.HandlerFunc {
	roleSet := make(map[models.RiderRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		if _, ok := roleSet[session.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
