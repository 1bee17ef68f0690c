package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/ids"
	"bustrack/internal/models"
	"bustrack/internal/repository"
)

const (
	DefaultBusCapacity     = 40
	DefaultImportPassword  = "password123"
	defaultRecentListLimit = 5
)

// FleetService owns bus and rider records. Every write that touches both
// sides of a relation (occupants, driver links) updates both before it
// returns; a failure part way leaves earlier steps in place.
type FleetService struct {
	buses        BusStore
	riders       RiderStore
	activeWindow time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

func NewFleetService(buses BusStore, riders RiderStore, activeWindow time.Duration, log zerolog.Logger) *FleetService {
	return &FleetService{
		buses:        buses,
		riders:       riders,
		activeWindow: activeWindow,
		log:          log,
		now:          time.Now,
	}
}

type CreateBusInput struct {
	BusID     string
	BusNumber string
	RouteName string
	Capacity  int
	DriverID  string
}

func (s *FleetService) CreateBus(ctx context.Context, input CreateBusInput) (models.Bus, error) {
	input.BusID = strings.TrimSpace(input.BusID)
	input.BusNumber = strings.TrimSpace(input.BusNumber)
	if input.BusID == "" || input.BusNumber == "" {
		return models.Bus{}, validationf("busId and busNumber are required")
	}
	if input.Capacity < 0 {
		return models.Bus{}, validationf("capacity must not be negative")
	}
	if input.Capacity == 0 {
		input.Capacity = DefaultBusCapacity
	}

	bus := models.Bus{
		ID:          ids.New(),
		BusID:       input.BusID,
		BusNumber:   input.BusNumber,
		RouteName:   strings.TrimSpace(input.RouteName),
		Capacity:    input.Capacity,
		OccupantIDs: []string{},
		Status:      models.BusStatusStopped,
	}

	var driver *models.Rider
	if input.DriverID != "" {
		d, err := s.availableDriver(ctx, input.DriverID, "")
		if err != nil {
			return models.Bus{}, err
		}
		driver = &d
		bus.DriverID = &d.ID
		bus.DriverName = &d.Name
	}

	if err := s.buses.Create(ctx, bus); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Bus{}, fmt.Errorf("%w: bus with this ID or number already exists", ErrConflict)
		}
		return models.Bus{}, err
	}
	if driver != nil {
		if err := s.riders.SetBus(ctx, driver.ID, &bus.ID); err != nil {
			return models.Bus{}, storeErr(err)
		}
	}

	s.log.Info().Str("bus_id", bus.ID).Str("bus_number", bus.BusNumber).Msg("bus created")
	return s.GetBus(ctx, bus.ID)
}

type UpdateBusInput struct {
	BusNumber *string
	RouteName *string
	Capacity  *int
	Status    *models.BusStatus
	// DriverID reassigns the driver; an empty string unassigns.
	DriverID *string
}

func (s *FleetService) UpdateBus(ctx context.Context, id string, input UpdateBusInput) (models.Bus, error) {
	if input.Status != nil && !input.Status.Valid() {
		return models.Bus{}, validationf("invalid status %q", *input.Status)
	}
	if input.Capacity != nil && *input.Capacity < 0 {
		return models.Bus{}, validationf("capacity must not be negative")
	}
	if input.BusNumber != nil && strings.TrimSpace(*input.BusNumber) == "" {
		return models.Bus{}, validationf("busNumber must not be empty")
	}

	bus, err := s.buses.Get(ctx, id)
	if err != nil {
		return models.Bus{}, storeErr(err)
	}

	details := models.BusDetails{
		BusNumber: input.BusNumber,
		RouteName: input.RouteName,
		Capacity:  input.Capacity,
		Status:    input.Status,
	}
	if err := s.buses.UpdateDetails(ctx, id, details); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Bus{}, fmt.Errorf("%w: bus number already in use", ErrConflict)
		}
		return models.Bus{}, storeErr(err)
	}

	if input.DriverID != nil {
		if err := s.assignDriver(ctx, bus, *input.DriverID); err != nil {
			return models.Bus{}, err
		}
	}

	return s.GetBus(ctx, id)
}

func (s *FleetService) assignDriver(ctx context.Context, bus models.Bus, driverID string) error {
	current := ""
	if bus.DriverID != nil {
		current = *bus.DriverID
	}
	if current == driverID {
		return nil
	}

	var next *models.Rider
	if driverID != "" {
		d, err := s.availableDriver(ctx, driverID, bus.ID)
		if err != nil {
			return err
		}
		next = &d
	}

	if current != "" {
		if err := s.riders.SetBus(ctx, current, nil); err != nil && !errors.Is(err, repository.ErrRiderNotFound) {
			return err
		}
	}

	if next == nil {
		return storeErr(s.buses.SetDriver(ctx, bus.ID, nil, nil))
	}
	if err := s.buses.SetDriver(ctx, bus.ID, &next.ID, &next.Name); err != nil {
		return storeErr(err)
	}
	return storeErr(s.riders.SetBus(ctx, next.ID, &bus.ID))
}

// availableDriver loads a driver that drives no bus other than exceptBusID.
func (s *FleetService) availableDriver(ctx context.Context, driverID string, exceptBusID string) (models.Rider, error) {
	driver, err := s.riders.GetByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrRiderNotFound) {
			return models.Rider{}, validationf("driver %s not found", driverID)
		}
		return models.Rider{}, err
	}
	if driver.Role != models.RiderRoleDriver {
		return models.Rider{}, validationf("user %s is not a driver", driverID)
	}

	existing, err := s.buses.FindByDriver(ctx, driverID)
	switch {
	case err == nil && existing.ID != exceptBusID:
		return models.Rider{}, fmt.Errorf("%w: driver already assigned to bus %s", ErrConflict, existing.BusNumber)
	case err != nil && !errors.Is(err, repository.ErrBusNotFound):
		return models.Rider{}, err
	}
	return driver, nil
}

// DeleteBus unassigns every rider of the bus before removing it.
func (s *FleetService) DeleteBus(ctx context.Context, id string) error {
	bus, err := s.buses.Get(ctx, id)
	if err != nil {
		return storeErr(err)
	}

	if err := s.riders.ClearBus(ctx, bus.ID); err != nil {
		return err
	}
	if err := s.buses.Delete(ctx, bus.ID); err != nil {
		return storeErr(err)
	}

	s.log.Info().Str("bus_id", bus.ID).Int("occupants", bus.OccupantCount()).Msg("bus deleted")
	return nil
}

func (s *FleetService) GetBus(ctx context.Context, id string) (models.Bus, error) {
	bus, err := s.buses.Get(ctx, id)
	return bus, storeErr(err)
}

func (s *FleetService) GetBusByNumber(ctx context.Context, busNumber string) (models.Bus, error) {
	bus, err := s.buses.GetByNumber(ctx, busNumber)
	return bus, storeErr(err)
}

func (s *FleetService) ListBuses(ctx context.Context, filter models.BusFilter) ([]models.Bus, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("invalid status %q", filter.Status)
	}
	return s.buses.List(ctx, filter)
}

// ListLiveBuses returns buses updated within the active window.
func (s *FleetService) ListLiveBuses(ctx context.Context) ([]models.Bus, error) {
	return s.buses.ListUpdatedSince(ctx, s.now().Add(-s.activeWindow))
}

// BusOptions lists every bus ordered by number, for assignment pickers.
func (s *FleetService) BusOptions(ctx context.Context) ([]models.Bus, error) {
	buses, err := s.buses.List(ctx, models.BusFilter{})
	if err != nil {
		return nil, err
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].BusNumber < buses[j].BusNumber })
	return buses, nil
}

func (s *FleetService) DriverOptions(ctx context.Context) ([]models.Rider, error) {
	drivers, err := s.riders.List(ctx, models.RiderFilter{Role: models.RiderRoleDriver})
	if err != nil {
		return nil, err
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].Name < drivers[j].Name })
	return drivers, nil
}
