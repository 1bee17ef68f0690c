// Package seed loads the demo fleet: one admin, one driver, one bus and
// one student riding it. Running it twice leaves the data unchanged.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/models"
	"bustrack/internal/service"
)

const (
	AdminEmail   = "admin@campus.edu"
	DriverEmail  = "driver@campus.edu"
	StudentEmail = "student@campus.edu"
	Password     = "password123"

	BusID     = "BUS_01"
	BusNumber = "01"
)

// Default bus position, campus main gate.
var (
	startLat = 12.9716
	startLng = 77.5946
)

type TelemetryStore interface {
	ApplyTelemetry(ctx context.Context, id string, t models.Telemetry) error
}

type Result struct {
	Created []string
	Skipped []string
}

func (r *Result) record(name string, created bool) {
	if created {
		r.Created = append(r.Created, name)
		return
	}
	r.Skipped = append(r.Skipped, name)
}

func Run(ctx context.Context, fleet *service.FleetService, buses TelemetryStore, log zerolog.Logger) (Result, error) {
	var res Result

	created, err := ensureRider(ctx, fleet, service.CreateRiderInput{
		Name:     "Campus Admin",
		Email:    AdminEmail,
		Password: Password,
		Role:     models.RiderRoleAdmin,
	})
	if err != nil {
		return res, fmt.Errorf("seed admin: %w", err)
	}
	res.record("admin", created)

	created, err = ensureRider(ctx, fleet, service.CreateRiderInput{
		Name:     "Ravi Kumar",
		Email:    DriverEmail,
		Password: Password,
		Role:     models.RiderRoleDriver,
		Phone:    "+91-9000000001",
	})
	if err != nil {
		return res, fmt.Errorf("seed driver: %w", err)
	}
	res.record("driver", created)

	created, err = ensureBus(ctx, fleet, buses)
	if err != nil {
		return res, fmt.Errorf("seed bus: %w", err)
	}
	res.record("bus", created)

	created, err = ensureRider(ctx, fleet, service.CreateRiderInput{
		Name:      "Asha Rao",
		Email:     StudentEmail,
		Password:  Password,
		Role:      models.RiderRoleStudent,
		StudentID: "STU-0001",
		BusNumber: BusNumber,
	})
	if err != nil {
		return res, fmt.Errorf("seed student: %w", err)
	}
	res.record("student", created)

	log.Info().
		Strs("created", res.Created).
		Strs("skipped", res.Skipped).
		Msg("seed complete")
	return res, nil
}

func ensureRider(ctx context.Context, fleet *service.FleetService, input service.CreateRiderInput) (bool, error) {
	_, err := fleet.CreateRider(ctx, input)
	if errors.Is(err, service.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

func ensureBus(ctx context.Context, fleet *service.FleetService, buses TelemetryStore) (bool, error) {
	_, err := fleet.GetBusByNumber(ctx, BusNumber)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, service.ErrNotFound) {
		return false, err
	}

	drivers, err := fleet.ListRiders(ctx, models.RiderFilter{Role: models.RiderRoleDriver, Search: DriverEmail, Limit: 1})
	if err != nil {
		return false, err
	}
	input := service.CreateBusInput{
		BusID:     BusID,
		BusNumber: BusNumber,
		RouteName: "Main Gate - Hostel Block",
		Capacity:  service.DefaultBusCapacity,
	}
	// Skip the link if the driver already drives another bus.
	if len(drivers) == 1 && drivers[0].BusID == nil {
		input.DriverID = drivers[0].ID
	}

	bus, err := fleet.CreateBus(ctx, input)
	if err != nil {
		return false, err
	}

	status := models.BusStatusStopped
	speed := 0.0
	if err := buses.ApplyTelemetry(ctx, bus.ID, models.Telemetry{
		Latitude:  &startLat,
		Longitude: &startLng,
		Speed:     &speed,
		Status:    &status,
		Full:      true,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return false, err
	}
	return true, nil
}
