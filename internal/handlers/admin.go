package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bustrack/internal/export"
	"bustrack/internal/models"
	"bustrack/internal/realtime"
	"bustrack/internal/service"
)

func queryLimit(c *gin.Context) int {
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		return v
	}
	return 0
}

func (h HandlerSet) AdminDashboard(c *gin.Context) {
	dash, err := h.reports.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"stats":       dash.Stats,
		"recentBuses": export.BusRecords(dash.RecentBuses),
		"recentUsers": export.RiderRecords(dash.RecentRiders),
	})
}

func (h HandlerSet) AdminAnalytics(c *gin.Context) {
	analytics, err := h.reports.Analytics(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analytics": analytics})
}

func (h HandlerSet) AdminExport(c *gin.Context) {
	archive, _ := strconv.ParseBool(c.Query("archive"))
	file, err := h.reports.Export(c.Request.Context(), c.Param("kind"), c.Query("format"), archive)
	if err != nil {
		h.fail(c, err)
		return
	}

	if file.URL != "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "name": file.Name, "url": file.URL})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Users.

type createUserRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=student driver admin"`
	StudentID string `json:"studentId"`
	Phone     string `json:"phone"`
	BusNumber string `json:"busNumber"`
}

type updateUserRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone"`
	StudentID *string `json:"studentId"`
	Role      *string `json:"role" binding:"omitempty,oneof=student driver admin"`
	BusNumber *string `json:"busNumber"`
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	riders, err := h.fleet.ListRiders(c.Request.Context(), models.RiderFilter{
		Role:   models.RiderRole(c.Query("role")),
		Search: c.Query("search"),
		Limit:  queryLimit(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": export.RiderRecords(riders)})
}

func (h HandlerSet) AdminGetUser(c *gin.Context) {
	rider, err := h.fleet.GetRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": export.RiderRecords([]models.Rider{rider})[0]})
}

func (h HandlerSet) AdminCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, "user", err)
		return
	}

	rider, err := h.fleet.CreateRider(c.Request.Context(), service.CreateRiderInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.RiderRole(req.Role),
		StudentID: req.StudentID,
		Phone:     req.Phone,
		BusNumber: req.BusNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": export.RiderRecords([]models.Rider{rider})[0]})
}

func (h HandlerSet) AdminUpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, "user", err)
		return
	}

	input := service.UpdateRiderInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		StudentID: req.StudentID,
		BusNumber: req.BusNumber,
	}
	if req.Role != nil {
		role := models.RiderRole(*req.Role)
		input.Role = &role
	}

	rider, err := h.fleet.UpdateRider(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": export.RiderRecords([]models.Rider{rider})[0]})
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	if err := h.fleet.DeleteRider(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user deleted"})
}

func (h HandlerSet) AdminImportUsers(c *gin.Context) {
	var rows []service.ImportRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		badRequest(c, "expected a JSON array of users")
		return
	}

	imported, failed, err := h.fleet.BulkImport(c.Request.Context(), rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("imported %d users, %d failed", len(imported), len(failed)),
		"imported": imported,
		"failed":   failed,
	})
}

// Buses.

type createBusRequest struct {
	BusID     string `json:"busId" binding:"required"`
	BusNumber string `json:"busNumber" binding:"required"`
	RouteName string `json:"routeName"`
	Capacity  int    `json:"capacity" binding:"gte=0"`
	DriverID  string `json:"driverId"`
}

type updateBusRequest struct {
	BusNumber *string `json:"busNumber" binding:"omitempty,min=1"`
	RouteName *string `json:"routeName"`
	Capacity  *int    `json:"capacity" binding:"omitempty,gte=0"`
	Status    *string `json:"status" binding:"omitempty,oneof=moving stopped delayed offline"`
	DriverID  *string `json:"driverId"`
}

func (h HandlerSet) AdminListBuses(c *gin.Context) {
	buses, err := h.fleet.ListBuses(c.Request.Context(), models.BusFilter{
		Status: models.BusStatus(c.Query("status")),
		Search: c.Query("search"),
		Limit:  queryLimit(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "buses": export.BusRecords(buses)})
}

func (h HandlerSet) AdminLiveBuses(c *gin.Context) {
	buses, err := h.fleet.ListLiveBuses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "buses": export.BusRecords(buses)})
}

func (h HandlerSet) AdminGetBus(c *gin.Context) {
	bus, err := h.fleet.GetBus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bus": busRecord(bus)})
}

func (h HandlerSet) AdminCreateBus(c *gin.Context) {
	var req createBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, "bus", err)
		return
	}

	bus, err := h.fleet.CreateBus(c.Request.Context(), service.CreateBusInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "bus": busRecord(bus)})
}

func (h HandlerSet) AdminUpdateBus(c *gin.Context) {
	var req updateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, "bus", err)
		return
	}

	input := service.UpdateBusInput{
		BusNumber: req.BusNumber,
		RouteName: req.RouteName,
		Capacity:  req.Capacity,
		DriverID:  req.DriverID,
	}
	if req.Status != nil {
		status := models.BusStatus(*req.Status)
		input.Status = &status
	}

	bus, err := h.fleet.UpdateBus(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bus": busRecord(bus)})
}

func (h HandlerSet) AdminDeleteBus(c *gin.Context) {
	if err := h.fleet.DeleteBus(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "bus deleted"})
}

func (h HandlerSet) AdminSetLocation(c *gin.Context) {
	var payload realtime.AdminLocationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "malformed location payload")
		return
	}

	ack, err := h.channel.AdminSetLocation(c.Request.Context(), session(c), c.Param("id"), payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h HandlerSet) AdminBusOptions(c *gin.Context) {
	buses, err := h.fleet.BusOptions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	options := make([]gin.H, 0, len(buses))
	for _, bus := range buses {
		options = append(options, gin.H{"id": bus.ID, "busNumber": bus.BusNumber, "routeName": bus.RouteName})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "buses": options})
}

func (h HandlerSet) AdminDriverOptions(c *gin.Context) {
	drivers, err := h.fleet.DriverOptions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	options := make([]gin.H, 0, len(drivers))
	for _, d := range drivers {
		options = append(options, gin.H{"id": d.ID, "name": d.Name, "email": d.Email})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "drivers": options})
}

func (h HandlerSet) AdminActiveDrivers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "driverIds": h.channel.Registry().ActiveDrivers()})
}
