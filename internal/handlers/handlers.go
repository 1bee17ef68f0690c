package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bustrack/internal/config"
	"bustrack/internal/middleware"
	"bustrack/internal/models"
	"bustrack/internal/ratelimit"
	"bustrack/internal/realtime"
	"bustrack/internal/service"
)

// HealthCheck is one dependency reported by /api/healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Dependencies struct {
	Config   *config.AppConfig
	Log      zerolog.Logger
	Auth     *service.AuthService
	Fleet    *service.FleetService
	Reports  *service.ReportService
	Routes   *service.RouteService
	Channel  *realtime.Channel
	Limiter  ratelimit.Limiter
	Metrics  http.Handler
	Checks   []HealthCheck
	Upgrader *websocket.Upgrader
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	fleet    *service.FleetService
	reports  *service.ReportService
	routes   *service.RouteService
	channel  *realtime.Channel
	limiter  ratelimit.Limiter
	metrics  http.Handler
	checks   []HealthCheck
	upgrader *websocket.Upgrader
}

func NewHandlerSet(deps Dependencies) HandlerSet {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	upgrader := deps.Upgrader
	if upgrader == nil {
		upgrader = NewUpgrader(deps.Config.AllowCORSOrigins)
	}
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		auth:     deps.Auth,
		fleet:    deps.Fleet,
		reports:  deps.Reports,
		routes:   deps.Routes,
		channel:  deps.Channel,
		limiter:  limiter,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
		upgrader: upgrader,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.Use(middleware.Session(h.cfg.Session.CookieName, h.auth, h.log))

	router.GET("/api/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/login", middleware.RateLimit(h.limiter, "login", h.log), h.Login)
		auth.POST("/logout", middleware.RequireSession(), h.Logout)
		auth.GET("/check", h.Check)
	}

	router.GET("/ws", middleware.RequireSession(), h.Socket)

	driver := router.Group("/driver")
	driver.Use(middleware.RequireRoles(models.RiderRoleDriver))
	{
		driver.GET("/dashboard", h.DriverDashboard)
		driver.POST("/update-live-location", h.UpdateLiveLocation)
	}

	student := router.Group("/student")
	student.Use(middleware.RequireRoles(models.RiderRoleStudent))
	{
		student.GET("/my-bus-location", h.MyBusLocation)
		student.GET("/route-info", h.RouteInfo)
	}

	api := router.Group("/api")
	api.Use(middleware.RequireSession())
	{
		api.GET("/buses/location", h.BusLocations)
		api.GET("/buses/number/:busNumber", h.BusByNumber)
		api.GET("/route", h.Route)
	}

	admin := router.Group("/admin/api")
	admin.Use(middleware.RequireRoles(models.RiderRoleAdmin))
	{
		admin.GET("/dashboard", h.AdminDashboard)
		admin.GET("/analytics", h.AdminAnalytics)
		admin.GET("/export/:kind", h.AdminExport)

		admin.GET("/users", h.AdminListUsers)
		admin.POST("/users", h.AdminCreateUser)
		admin.POST("/users/import", h.AdminImportUsers)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PUT("/users/:id", h.AdminUpdateUser)
		admin.DELETE("/users/:id", h.AdminDeleteUser)

		admin.GET("/buses", h.AdminListBuses)
		admin.POST("/buses", h.AdminCreateBus)
		admin.GET("/buses/live", h.AdminLiveBuses)
		admin.GET("/buses/:id", h.AdminGetBus)
		admin.PUT("/buses/:id", h.AdminUpdateBus)
		admin.DELETE("/buses/:id", h.AdminDeleteBus)
		admin.POST("/buses/:id/location", h.AdminSetLocation)

		admin.GET("/options/buses", h.AdminBusOptions)
		admin.GET("/options/drivers", h.AdminDriverOptions)
		admin.GET("/drivers/active", h.AdminActiveDrivers)
	}
}

// session is only called behind RequireSession or RequireRoles.
func session(c *gin.Context) *models.Session {
	s, _ := middleware.CurrentSession(c)
	return s
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotAssigned), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log := middleware.RequestLogger(c, h.log)
		log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// invalidPayload names the first failed binding rule, or reports the body
// as malformed when it did not decode.
func invalidPayload(c *gin.Context, what string, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		badRequest(c, fmt.Sprintf("invalid %s payload: %s fails %q", what, verrs[0].Field(), verrs[0].Tag()))
		return
	}
	badRequest(c, "malformed "+what+" payload")
}
