package seed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
	"bustrack/internal/repository"
	"bustrack/internal/service"
)

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	fleet := service.NewFleetService(store.Buses(), store.Riders(), 10*time.Minute, zerolog.Nop())

	first, err := Run(ctx, fleet, store.Buses(), zerolog.Nop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"admin", "driver", "bus", "student"}, first.Created)
	assert.Empty(t, first.Skipped)

	second, err := Run(ctx, fleet, store.Buses(), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, second.Skipped, 4)

	buses, err := fleet.ListBuses(ctx, models.BusFilter{})
	require.NoError(t, err)
	require.Len(t, buses, 1)

	bus := buses[0]
	assert.Equal(t, BusID, bus.BusID)
	assert.Equal(t, service.DefaultBusCapacity, bus.Capacity)
	require.NotNil(t, bus.DriverID)
	require.NotNil(t, bus.Latitude)
	assert.InDelta(t, 12.9716, *bus.Latitude, 1e-9)
	assert.Len(t, bus.OccupantIDs, 1)

	riders, err := fleet.ListRiders(ctx, models.RiderFilter{})
	require.NoError(t, err)
	assert.Len(t, riders, 3)
}

func TestRunAssignsStudentToSeededBus(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	fleet := service.NewFleetService(store.Buses(), store.Riders(), 10*time.Minute, zerolog.Nop())

	_, err := Run(ctx, fleet, store.Buses(), zerolog.Nop())
	require.NoError(t, err)

	students, err := fleet.ListRiders(ctx, models.RiderFilter{Role: models.RiderRoleStudent})
	require.NoError(t, err)
	require.Len(t, students, 1)

	bus, err := fleet.StudentBus(ctx, students[0].ID)
	require.NoError(t, err)
	assert.Equal(t, BusNumber, bus.BusNumber)
}
