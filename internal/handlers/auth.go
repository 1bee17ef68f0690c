package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/export"
	"bustrack/internal/middleware"
	"bustrack/internal/models"
	"bustrack/internal/service"
)

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type identityResponse struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  models.RiderRole `json:"role"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	maxAge := int(result.Session.ExpiresAt.Sub(result.Session.CreatedAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Session.CookieName, result.Token, maxAge, "/", "", h.cfg.Session.Secure, true)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"user":      export.RiderRecords([]models.Rider{result.Rider})[0],
		"expiresAt": result.Session.ExpiresAt,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), session(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Session.CookieName, "", -1, "/", "", h.cfg.Session.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h HandlerSet) Check(c *gin.Context) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": identityResponse{
			ID:    s.RiderID,
			Name:  s.Name,
			Email: s.Email,
			Role:  s.Role,
		},
	})
}
