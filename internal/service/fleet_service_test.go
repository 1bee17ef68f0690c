package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
)

func TestCreateBusDuplicateNumberConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_99", BusNumber: "01"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_01", BusNumber: "99"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateBusValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_02"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_02", BusNumber: "02", Capacity: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateBusDefaults(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, DefaultBusCapacity, f.bus.Capacity)
	assert.Equal(t, models.BusStatusStopped, f.bus.Status)
	assert.False(t, f.bus.HasPosition())
	require.NotNil(t, f.bus.DriverID)
	assert.Equal(t, f.driver.ID, *f.bus.DriverID)
	assert.Equal(t, "Ravi", *f.bus.DriverName)

	driver, err := f.fleet.GetRider(f.ctx, f.driver.ID)
	require.NoError(t, err)
	require.NotNil(t, driver.BusID)
	assert.Equal(t, f.bus.ID, *driver.BusID)
}

func TestDriverCannotDriveTwoBuses(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_02", BusNumber: "02", DriverID: f.driver.ID})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStudentAssignmentIsBidirectional(t *testing.T) {
	f := newFixture(t)
	s := f.student(t, "asha@campus.edu", "01")

	require.NotNil(t, s.BusID)
	assert.Equal(t, f.bus.ID, *s.BusID)

	bus, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, bus.OccupantIDs)
}

func TestCreateStudentUnknownBus(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.CreateRider(f.ctx, CreateRiderInput{Name: "X", Email: "x@campus.edu", Password: "p", Role: models.RiderRoleStudent, BusNumber: "77"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.fleetRiderByEmail("x@campus.edu")
	assert.Error(t, err, "nothing is created when validation fails")
}

func TestReassignStudentMovesBothSides(t *testing.T) {
	f := newFixture(t)
	other, err := f.fleet.CreateBus(f.ctx, CreateBusInput{BusID: "BUS_02", BusNumber: "02"})
	require.NoError(t, err)
	s := f.student(t, "asha@campus.edu", "01")

	updated, err := f.fleet.UpdateRider(f.ctx, s.ID, UpdateRiderInput{BusNumber: ptr("02")})
	require.NoError(t, err)
	require.NotNil(t, updated.BusID)
	assert.Equal(t, other.ID, *updated.BusID)

	first, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Empty(t, first.OccupantIDs)

	second, err := f.fleet.GetBus(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, second.OccupantIDs)

	unassigned, err := f.fleet.UpdateRider(f.ctx, s.ID, UpdateRiderInput{BusNumber: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, unassigned.BusID)
	second, err = f.fleet.GetBus(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, second.OccupantIDs)
}

func TestUpdateRiderKeepsAssignment(t *testing.T) {
	f := newFixture(t)
	s := f.student(t, "asha@campus.edu", "01")

	updated, err := f.fleet.UpdateRider(f.ctx, s.ID, UpdateRiderInput{Name: ptr("Asha K"), Phone: ptr("555-0100")})
	require.NoError(t, err)
	assert.Equal(t, "Asha K", updated.Name)
	require.NotNil(t, updated.BusID)
	assert.Equal(t, f.bus.ID, *updated.BusID)

	bus, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, bus.OccupantIDs)
}

func TestRenamingDriverUpdatesBus(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.UpdateRider(f.ctx, f.driver.ID, UpdateRiderInput{Name: ptr("Ravi Kumar")})
	require.NoError(t, err)

	bus, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	require.NotNil(t, bus.DriverName)
	assert.Equal(t, "Ravi Kumar", *bus.DriverName)
}

func TestDeleteBusUnassignsOccupants(t *testing.T) {
	f := newFixture(t)
	a := f.student(t, "a@campus.edu", "01")
	b := f.student(t, "b@campus.edu", "01")

	require.NoError(t, f.fleet.DeleteBus(f.ctx, f.bus.ID))

	for _, id := range []string{a.ID, b.ID, f.driver.ID} {
		rider, err := f.fleet.GetRider(f.ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rider.BusID, rider.Email)
	}

	_, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.fleet.DeleteBus(f.ctx, f.bus.ID), ErrNotFound)
}

func TestDeleteDriverClearsBusLink(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.fleet.DeleteRider(f.ctx, f.driver.ID))

	bus, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Nil(t, bus.DriverID)
	assert.Nil(t, bus.DriverName)
}

func TestDeleteStudentRemovesOccupant(t *testing.T) {
	f := newFixture(t)
	s := f.student(t, "asha@campus.edu", "01")

	require.NoError(t, f.fleet.DeleteRider(f.ctx, s.ID))

	bus, err := f.fleet.GetBus(f.ctx, f.bus.ID)
	require.NoError(t, err)
	assert.Empty(t, bus.OccupantIDs)
}

func TestUpdateBusReassignsDriver(t *testing.T) {
	f := newFixture(t)
	second, err := f.fleet.CreateRider(f.ctx, CreateRiderInput{Name: "Meena", Email: "meena@campus.edu", Password: "x", Role: models.RiderRoleDriver})
	require.NoError(t, err)

	bus, err := f.fleet.UpdateBus(f.ctx, f.bus.ID, UpdateBusInput{DriverID: ptr(second.ID), RouteName: ptr("South Loop")})
	require.NoError(t, err)
	assert.Equal(t, second.ID, *bus.DriverID)
	assert.Equal(t, "South Loop", bus.RouteName)

	old, err := f.fleet.GetRider(f.ctx, f.driver.ID)
	require.NoError(t, err)
	assert.Nil(t, old.BusID)

	_, err = f.fleet.UpdateBus(f.ctx, f.bus.ID, UpdateBusInput{Status: ptr(models.BusStatus("flying"))})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.fleet.UpdateBus(f.ctx, f.bus.ID, UpdateBusInput{DriverID: ptr(f.bus.ID)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStudentBusNotAssigned(t *testing.T) {
	f := newFixture(t)
	s := f.student(t, "asha@campus.edu", "")

	_, err := f.fleet.StudentBus(f.ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestDriverDashboard(t *testing.T) {
	f := newFixture(t)
	s := f.student(t, "asha@campus.edu", "01")

	view, err := f.fleet.DriverDashboard(f.ctx, f.driver.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Bus)
	assert.Equal(t, f.bus.ID, view.Bus.ID)
	require.Len(t, view.Occupants, 1)
	assert.Equal(t, s.ID, view.Occupants[0].ID)
}

func TestBulkImportReportsPerRow(t *testing.T) {
	f := newFixture(t)

	imported, failed, err := f.fleet.BulkImport(f.ctx, []ImportRow{
		{Name: "One", Email: "one@campus.edu", Role: "student", BusNumber: "01"},
		{Name: "Dup", Email: "driver@campus.edu", Role: "student"},
		{Name: "Two", Email: "two@campus.edu"},
	})
	require.NoError(t, err)
	assert.Len(t, imported, 2)
	require.Len(t, failed, 1)
	assert.Equal(t, "driver@campus.edu", failed[0].Email)

	rider, err := f.fleetRiderByEmail("two@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, models.RiderRoleStudent, rider.Role)

	_, _, err = f.fleet.BulkImport(f.ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func (f *fixture) fleetRiderByEmail(email string) (models.Rider, error) {
	return f.store.Riders().FindByEmail(f.ctx, email)
}

func TestRiderEmailMustBeWellFormed(t *testing.T) {
	f := newFixture(t)

	_, err := f.fleet.CreateRider(f.ctx, CreateRiderInput{Name: "Kiran", Email: "kiran.campus.edu", Password: "secret123", Role: models.RiderRoleStudent})
	assert.ErrorIs(t, err, ErrValidation)

	s := f.student(t, "asha@campus.edu", "")
	_, err = f.fleet.UpdateRider(f.ctx, s.ID, UpdateRiderInput{Email: ptr("asha@")})
	assert.ErrorIs(t, err, ErrValidation)

	imported, failed, err := f.fleet.BulkImport(f.ctx, []ImportRow{
		{Name: "Bad", Email: "@campus.edu", Role: "student"},
		{Name: "Good", Email: "good@campus.edu", Role: "student"},
	})
	require.NoError(t, err)
	assert.Len(t, imported, 1)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "invalid email")
}
