package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bustrack/internal/export"
	"bustrack/internal/geo"
	"bustrack/internal/models"
	"bustrack/internal/realtime"
)

func busRecord(bus models.Bus) export.BusRecord {
	return export.BusRecords([]models.Bus{bus})[0]
}

func (h HandlerSet) DriverDashboard(c *gin.Context) {
	view, err := h.fleet.DriverDashboard(c.Request.Context(), session(c).RiderID)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{
		"success":  true,
		"driver":   export.RiderRecords([]models.Rider{view.Driver})[0],
		"bus":      nil,
		"students": export.RiderRecords(view.Occupants),
	}
	if view.Bus != nil {
		resp["bus"] = busRecord(*view.Bus)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateLiveLocation is the HTTP form of the driver-location-update event.
func (h HandlerSet) UpdateLiveLocation(c *gin.Context) {
	var payload realtime.LocationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "malformed location payload")
		return
	}

	ack, err := h.channel.SubmitLocation(c.Request.Context(), session(c), c.ClientIP(), payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h HandlerSet) MyBusLocation(c *gin.Context) {
	bus, err := h.fleet.StudentBus(c.Request.Context(), session(c).RiderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bus": busRecord(bus)})
}

func (h HandlerSet) RouteInfo(c *gin.Context) {
	origin, ok := queryPoint(c, "lat", "lng")
	if !ok {
		badRequest(c, "lat and lng query parameters are required")
		return
	}

	result, err := h.routes.StudentRoute(c.Request.Context(), session(c).RiderID, origin)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bus":     busRecord(result.Bus),
		"route":   result.Route,
	})
}

func (h HandlerSet) BusLocations(c *gin.Context) {
	buses, err := h.fleet.ListBuses(c.Request.Context(), models.BusFilter{})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "buses": export.BusRecords(buses)})
}

func (h HandlerSet) BusByNumber(c *gin.Context) {
	bus, err := h.fleet.GetBusByNumber(c.Request.Context(), c.Param("busNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bus": busRecord(bus)})
}

func (h HandlerSet) Route(c *gin.Context) {
	origin, ok := queryPoint(c, "fromLat", "fromLng")
	if !ok {
		badRequest(c, "fromLat and fromLng query parameters are required")
		return
	}
	destination, ok := queryPoint(c, "toLat", "toLng")
	if !ok {
		badRequest(c, "toLat and toLng query parameters are required")
		return
	}

	route, err := h.routes.Route(c.Request.Context(), origin, destination, c.Query("profile"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "route": route})
}

func queryPoint(c *gin.Context, latKey, lngKey string) (geo.Point, bool) {
	lat, err := strconv.ParseFloat(c.Query(latKey), 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(c.Query(lngKey), 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}
