package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
	"bustrack/internal/repository"
	"bustrack/internal/security"
)

func TestMain(m *testing.M) {
	hashPassword = func(password string) ([]byte, error) {
		return security.HashPasswordWithParams(password, security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	}
	os.Exit(m.Run())
}

type fixture struct {
	store  *repository.MemoryStore
	fleet  *FleetService
	ctx    context.Context
	bus    models.Bus
	driver models.Rider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{
		store: store,
		fleet: NewFleetService(store.Buses(), store.Riders(), 10*time.Minute, zerolog.Nop()),
		ctx:   context.Background(),
	}

	var err error
	f.driver, err = f.fleet.CreateRider(f.ctx, CreateRiderInput{Name: "Ravi", Email: "driver@campus.edu", Password: "driver123", Role: models.RiderRoleDriver})
	require.NoError(t, err)
	f.bus, err = f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_01", BusNumber: "01", RouteName: "North Loop", DriverID: f.driver.ID})
	require.NoError(t, err)
	return f
}

func (f *fixture) student(t *testing.T, email string, busNumber string) models.Rider {
	t.Helper()
	rider, err := f.fleet.CreateRider(f.ctx, CreateRiderInput{Name: email, Email: email, Password: "student123", Role: models.RiderRoleStudent, BusNumber: busNumber})
	require.NoError(t, err)
	return rider
}

func ptr[T any](v T) *T { return &v }

func errBusMissing() error { return repository.ErrBusNotFound }
