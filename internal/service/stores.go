package service

import (
	"context"
	"time"

	"bustrack/internal/models"
)

type BusStore interface {
	Create(ctx context.Context, bus models.Bus) error
	Get(ctx context.Context, id string) (models.Bus, error)
	GetByNumber(ctx context.Context, busNumber string) (models.Bus, error)
	FindByDriver(ctx context.Context, driverID string) (models.Bus, error)
	List(ctx context.Context, filter models.BusFilter) ([]models.Bus, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Bus, error)
	Counts(ctx context.Context, activeSince time.Time) (models.BusCounts, error)
	UpdateDetails(ctx context.Context, id string, details models.BusDetails) error
	ApplyTelemetry(ctx context.Context, id string, t models.Telemetry) error
	SetDriver(ctx context.Context, busID string, driverID *string, driverName *string) error
	ClearDriver(ctx context.Context, driverID string) error
	AddOccupant(ctx context.Context, busID string, riderID string) error
	RemoveOccupant(ctx context.Context, busID string, riderID string) error
	Delete(ctx context.Context, id string) error
}

type RiderStore interface {
	Create(ctx context.Context, rider models.Rider) error
	GetByID(ctx context.Context, id string) (models.Rider, error)
	FindByEmail(ctx context.Context, email string) (models.Rider, error)
	List(ctx context.Context, filter models.RiderFilter) ([]models.Rider, error)
	Update(ctx context.Context, id string, changes models.RiderChanges) error
	SetBus(ctx context.Context, riderID string, busID *string) error
	ClearBus(ctx context.Context, busID string) error
	Delete(ctx context.Context, id string) error
	CountByRole(ctx context.Context) (map[models.RiderRole]int, error)
	CreatedPerDay(ctx context.Context, since time.Time) ([]models.DateCount, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type HistoryStore interface {
	Insert(ctx context.Context, rec models.LocationRecord) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountPerDay(ctx context.Context, since time.Time) ([]models.DateCount, error)
}
