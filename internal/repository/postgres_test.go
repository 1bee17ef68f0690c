package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
	"bustrack/internal/database"
	"bustrack/internal/ids"
	"bustrack/internal/models"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("BUSTRACK_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("BUSTRACK_TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpen: 4})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `TRUNCATE bus_occupants, bus_location_history, buses, riders`)
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresBusLifecycle(t *testing.T) {
	pool := openTestPool(t)
	buses := NewBusRepository(pool)
	riders := NewRiderRepository(pool)
	ctx := context.Background()

	driver := models.Rider{ID: ids.New(), Name: "Ravi", Email: "ravi@campus.edu", PasswordHash: []byte("x"), Role: models.RiderRoleDriver}
	require.NoError(t, riders.Create(ctx, driver))

	bus := models.Bus{ID: ids.New(), BusID: "BUS_01", BusNumber: "01", Capacity: 40, Status: models.BusStatusStopped,
		DriverID: &driver.ID, DriverName: &driver.Name}
	require.NoError(t, buses.Create(ctx, bus))

	dup := models.Bus{ID: ids.New(), BusID: "BUS_99", BusNumber: "01", Status: models.BusStatusStopped}
	assert.ErrorIs(t, buses.Create(ctx, dup), ErrDuplicate)

	found, err := buses.FindByDriver(ctx, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, bus.ID, found.ID)
	assert.Empty(t, found.OccupantIDs)
	assert.False(t, found.HasPosition())

	lat, lng, speed := 12.9716, 77.5946, 22.5
	status := models.BusStatusMoving
	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, buses.ApplyTelemetry(ctx, bus.ID, models.Telemetry{
		Latitude: &lat, Longitude: &lng, Speed: &speed, Status: &status, UpdatedAt: at,
	}))

	stopped := models.BusStatusStopped
	require.NoError(t, buses.ApplyTelemetry(ctx, bus.ID, models.Telemetry{Status: &stopped, UpdatedAt: at.Add(time.Second)}))

	got, err := buses.Get(ctx, bus.ID)
	require.NoError(t, err)
	require.True(t, got.HasPosition())
	assert.Equal(t, lat, *got.Latitude)
	assert.Equal(t, lng, *got.Longitude)
	assert.Equal(t, speed, got.Speed)
	assert.Equal(t, models.BusStatusStopped, got.Status)

	student := models.Rider{ID: ids.New(), Name: "Asha", Email: "asha@campus.edu", PasswordHash: []byte("x"), Role: models.RiderRoleStudent, BusID: &bus.ID}
	require.NoError(t, riders.Create(ctx, student))
	require.NoError(t, buses.AddOccupant(ctx, bus.ID, student.ID))
	require.NoError(t, buses.AddOccupant(ctx, bus.ID, student.ID))

	got, err = buses.Get(ctx, bus.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{student.ID}, got.OccupantIDs)

	require.NoError(t, riders.ClearBus(ctx, bus.ID))
	require.NoError(t, buses.Delete(ctx, bus.ID))
	assert.ErrorIs(t, buses.Delete(ctx, bus.ID), ErrBusNotFound)

	reloaded, err := riders.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.BusID)
}

func TestPostgresHistory(t *testing.T) {
	pool := openTestPool(t)
	history := NewHistoryRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, history.Insert(ctx, models.LocationRecord{BusID: "a", Status: models.BusStatusMoving, Source: "driver", RecordedAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, history.Insert(ctx, models.LocationRecord{BusID: "a", Status: models.BusStatusMoving, Source: "driver", RecordedAt: now}))

	removed, err := history.PruneBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	perDay, err := history.CountPerDay(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, perDay, 1)
	assert.Equal(t, 1, perDay[0].Count)
}
