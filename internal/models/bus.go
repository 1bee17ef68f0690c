package models

import "time"

type BusStatus string

const (
	BusStatusMoving  BusStatus = "moving"
	BusStatusStopped BusStatus = "stopped"
	BusStatusDelayed BusStatus = "delayed"
	BusStatusOffline BusStatus = "offline"
)

func (s BusStatus) Valid() bool {
	switch s {
	case BusStatusMoving, BusStatusStopped, BusStatusDelayed, BusStatusOffline:
		return true
	}
	return false
}

// Bus is the persisted record of a vehicle. Latitude and Longitude are
// either both set or both nil.
type Bus struct {
	ID          string
	BusID       string
	BusNumber   string
	RouteName   string
	Capacity    int
	DriverID    *string
	DriverName  *string
	OccupantIDs []string
	Latitude    *float64
	Longitude   *float64
	Speed       float64
	Accuracy    *float64
	Status      BusStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b Bus) HasPosition() bool {
	return b.Latitude != nil && b.Longitude != nil
}

func (b Bus) OccupantCount() int {
	return len(b.OccupantIDs)
}

// Telemetry is a partial update of the runtime fields of a bus. Nil
// fields are left untouched and UpdatedAt is always written. A Full
// update also clears Accuracy when it is nil.
type Telemetry struct {
	Latitude  *float64
	Longitude *float64
	Speed     *float64
	Accuracy  *float64
	Status    *BusStatus
	Full      bool
	UpdatedAt time.Time
}

// BusDetails carries the admin-editable structural fields. Nil fields are
// left untouched.
type BusDetails struct {
	BusNumber *string
	RouteName *string
	Capacity  *int
	Status    *BusStatus
}

type BusFilter struct {
	Status BusStatus
	Search string
	Limit  int
}

type BusCounts struct {
	Total  int
	Active int
}

// DateCount is one bucket of a per-day aggregation.
type DateCount struct {
	Date  string
	Count int
}

// LocationRecord is one accepted position event, kept for history.
type LocationRecord struct {
	BusID      string    `json:"busId"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Speed      float64   `json:"speed"`
	Status     BusStatus `json:"status"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recordedAt"`
}
