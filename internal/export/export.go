// Package export renders riders and buses for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"bustrack/internal/models"
)

type RiderRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	StudentID string    `json:"studentId,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	BusID     string    `json:"busId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type BusRecord struct {
	ID         string    `json:"id"`
	BusID      string    `json:"busId"`
	BusNumber  string    `json:"busNumber"`
	RouteName  string    `json:"routeName"`
	Capacity   int       `json:"capacity"`
	DriverID   string    `json:"driverId,omitempty"`
	DriverName string    `json:"driverName,omitempty"`
	Occupants  int       `json:"occupants"`
	Status     string    `json:"status"`
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
	Speed      float64   `json:"speed"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func RiderRecords(riders []models.Rider) []RiderRecord {
	out := make([]RiderRecord, 0, len(riders))
	for _, r := range riders {
		out = append(out, RiderRecord{
			ID:        r.ID,
			Name:      r.Name,
			Email:     r.Email,
			Role:      string(r.Role),
			StudentID: deref(r.StudentID),
			Phone:     deref(r.Phone),
			BusID:     deref(r.BusID),
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func BusRecords(buses []models.Bus) []BusRecord {
	out := make([]BusRecord, 0, len(buses))
	for _, b := range buses {
		out = append(out, BusRecord{
			ID:         b.ID,
			BusID:      b.BusID,
			BusNumber:  b.BusNumber,
			RouteName:  b.RouteName,
			Capacity:   b.Capacity,
			DriverID:   deref(b.DriverID),
			DriverName: deref(b.DriverName),
			Occupants:  b.OccupantCount(),
			Status:     string(b.Status),
			Latitude:   b.Latitude,
			Longitude:  b.Longitude,
			Speed:      b.Speed,
			UpdatedAt:  b.UpdatedAt,
		})
	}
	return out
}

func WriteRidersCSV(w io.Writer, riders []models.Rider) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "Email", "Role", "Student ID", "Phone", "Created At"}); err != nil {
		return err
	}
	for _, r := range riders {
		if err := cw.Write([]string{
			r.Name,
			r.Email,
			string(r.Role),
			deref(r.StudentID),
			deref(r.Phone),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteBusesCSV(w io.Writer, buses []models.Bus) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Bus Number", "Bus ID", "Route", "Driver", "Status", "Latitude", "Longitude", "Last Updated"}); err != nil {
		return err
	}
	for _, b := range buses {
		if err := cw.Write([]string{
			b.BusNumber,
			b.BusID,
			b.RouteName,
			deref(b.DriverName),
			string(b.Status),
			formatCoord(b.Latitude),
			formatCoord(b.Longitude),
			b.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
