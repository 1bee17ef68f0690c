// Package realtime fans accepted bus positions out to connected clients.
package realtime

import (
	"time"

	"bustrack/internal/models"
)

const (
	EventJoinBusRoom    = "join-bus-room"
	EventLeaveBusRoom   = "leave-bus-room"
	EventDriverLocation = "driver-location-update"
	EventBusUpdate      = "bus-update"
	EventBusLiveUpdate  = "bus-live-update"
	EventTrackingCount  = "tracking-count"
	EventDriverStatus   = "driver-status"
	EventLocationAck    = "location-ack"
	EventError          = "error"
)

const (
	DriverStatusOnline  = "online"
	DriverStatusOffline = "offline"
)

const (
	AdminRoom           = "admin"
	busRoomPrefix       = "bus:"
	driverChannelPrefix = "driver:"
)

// Event is one websocket frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

func BusRoom(busID string) string { return busRoomPrefix + busID }

func DriverChannel(driverID string) string { return driverChannelPrefix + driverID }

// BusUpdate is the payload of bus-update and bus-live-update.
type BusUpdate struct {
	BusID     string           `json:"busId"`
	BusNumber string           `json:"busNumber"`
	Latitude  *float64         `json:"latitude"`
	Longitude *float64         `json:"longitude"`
	Speed     float64          `json:"speed"`
	Accuracy  *float64         `json:"accuracy,omitempty"`
	Status    models.BusStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

type TrackingCount struct {
	BusID string `json:"busId"`
	Count int    `json:"count"`
}

type DriverStatus struct {
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName"`
	BusID      string    `json:"busId,omitempty"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ack is returned to the submitter of an accepted location.
type Ack struct {
	Success       bool      `json:"success"`
	TrackingCount int       `json:"trackingCount"`
	Timestamp     time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func busUpdateFrom(bus models.Bus) BusUpdate {
	return BusUpdate{
		BusID:     bus.ID,
		BusNumber: bus.BusNumber,
		Latitude:  bus.Latitude,
		Longitude: bus.Longitude,
		Speed:     bus.Speed,
		Accuracy:  bus.Accuracy,
		Status:    bus.Status,
		Timestamp: bus.UpdatedAt,
	}
}
