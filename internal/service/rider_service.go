package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bustrack/internal/ids"
	"bustrack/internal/models"
	"bustrack/internal/repository"
)

type CreateRiderInput struct {
	Name      string
	Email     string
	Password  string
	Role      models.RiderRole
	StudentID string
	Phone     string
	BusNumber string
}

func (s *FleetService) CreateRider(ctx context.Context, input CreateRiderInput) (models.Rider, error) {
	input.Name = strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	if input.Name == "" || email == "" || input.Password == "" || input.Role == "" {
		return models.Rider{}, validationf("name, email, password and role are required")
	}
	if !validEmail(email) {
		return models.Rider{}, validationf("invalid email %q", input.Email)
	}
	if !input.Role.Valid() {
		return models.Rider{}, validationf("invalid role %q", input.Role)
	}

	var bus *models.Bus
	if busNumber := strings.TrimSpace(input.BusNumber); busNumber != "" {
		b, err := s.busForAssignment(ctx, busNumber, input.Role)
		if err != nil {
			return models.Rider{}, err
		}
		bus = &b
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return models.Rider{}, err
	}

	rider := models.Rider{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		StudentID:    optional(input.StudentID),
		Phone:        optional(input.Phone),
	}
	if rider.Role != models.RiderRoleStudent {
		rider.StudentID = nil
	}

	if err := s.riders.Create(ctx, rider); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Rider{}, fmt.Errorf("%w: email or student id already registered", ErrConflict)
		}
		return models.Rider{}, err
	}

	if bus != nil {
		if err := s.linkRider(ctx, rider, *bus); err != nil {
			return models.Rider{}, err
		}
	}

	s.log.Info().Str("rider_id", rider.ID).Str("role", string(rider.Role)).Msg("rider created")
	return s.GetRider(ctx, rider.ID)
}

// busForAssignment resolves a bus number for a new link. Only students
// and drivers ride buses.
func (s *FleetService) busForAssignment(ctx context.Context, busNumber string, role models.RiderRole) (models.Bus, error) {
	if role != models.RiderRoleStudent && role != models.RiderRoleDriver {
		return models.Bus{}, validationf("only students and drivers can be assigned a bus")
	}
	bus, err := s.buses.GetByNumber(ctx, busNumber)
	if err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return models.Bus{}, validationf("bus %s not found", busNumber)
		}
		return models.Bus{}, err
	}
	if role == models.RiderRoleDriver && bus.DriverID != nil {
		return models.Bus{}, fmt.Errorf("%w: bus %s already has a driver", ErrConflict, busNumber)
	}
	return bus, nil
}

// busForRider is busForAssignment that tolerates the rider already
// driving the bus.
func (s *FleetService) busForRider(ctx context.Context, busNumber string, riderID string, role models.RiderRole) (models.Bus, error) {
	bus, err := s.buses.GetByNumber(ctx, busNumber)
	if err == nil && role == models.RiderRoleDriver && bus.DriverID != nil && *bus.DriverID == riderID {
		return bus, nil
	}
	return s.busForAssignment(ctx, busNumber, role)
}

// linkRider writes both sides of a rider to bus link.
func (s *FleetService) linkRider(ctx context.Context, rider models.Rider, bus models.Bus) error {
	switch rider.Role {
	case models.RiderRoleStudent:
		if err := s.riders.SetBus(ctx, rider.ID, &bus.ID); err != nil {
			return storeErr(err)
		}
		return storeErr(s.buses.AddOccupant(ctx, bus.ID, rider.ID))
	case models.RiderRoleDriver:
		if err := s.buses.SetDriver(ctx, bus.ID, &rider.ID, &rider.Name); err != nil {
			return storeErr(err)
		}
		return storeErr(s.riders.SetBus(ctx, rider.ID, &bus.ID))
	}
	return nil
}

// unlinkRider removes both sides of whatever link the rider holds.
func (s *FleetService) unlinkRider(ctx context.Context, rider models.Rider) error {
	switch rider.Role {
	case models.RiderRoleStudent:
		if rider.BusID != nil {
			if err := s.buses.RemoveOccupant(ctx, *rider.BusID, rider.ID); err != nil {
				return err
			}
		}
	case models.RiderRoleDriver:
		if err := s.buses.ClearDriver(ctx, rider.ID); err != nil {
			return err
		}
	}
	if rider.BusID == nil {
		return nil
	}
	return storeErr(s.riders.SetBus(ctx, rider.ID, nil))
}

type UpdateRiderInput struct {
	Name      *string
	Email     *string
	Phone     *string
	StudentID *string
	Role      *models.RiderRole
	// BusNumber reassigns the bus; an empty string unassigns.
	BusNumber *string
}

func (s *FleetService) UpdateRider(ctx context.Context, id string, input UpdateRiderInput) (models.Rider, error) {
	if input.Role != nil && !input.Role.Valid() {
		return models.Rider{}, validationf("invalid role %q", *input.Role)
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return models.Rider{}, validationf("name must not be empty")
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email == "" {
			return models.Rider{}, validationf("email must not be empty")
		}
		if !validEmail(email) {
			return models.Rider{}, validationf("invalid email %q", *input.Email)
		}
		input.Email = &email
	}

	rider, err := s.riders.GetByID(ctx, id)
	if err != nil {
		return models.Rider{}, storeErr(err)
	}

	role := rider.Role
	if input.Role != nil {
		role = *input.Role
	}

	var currentBusID string
	if rider.BusID != nil {
		currentBusID = *rider.BusID
	}

	// Resolve the wanted bus before touching anything. A role change
	// without a bus number drops the current link.
	var target *models.Bus
	if input.BusNumber != nil && strings.TrimSpace(*input.BusNumber) != "" {
		b, err := s.busForRider(ctx, strings.TrimSpace(*input.BusNumber), rider.ID, role)
		if err != nil {
			return models.Rider{}, err
		}
		target = &b
	} else if input.BusNumber == nil && role == rider.Role && currentBusID != "" {
		target = &models.Bus{ID: currentBusID}
	}

	targetBusID := ""
	if target != nil {
		targetBusID = target.ID
	}
	relink := role != rider.Role || targetBusID != currentBusID

	if relink {
		if err := s.unlinkRider(ctx, rider); err != nil {
			return models.Rider{}, err
		}
	}

	changes := models.RiderChanges{
		Name:      trimmed(input.Name),
		Email:     input.Email,
		Phone:     trimmed(input.Phone),
		StudentID: trimmed(input.StudentID),
		Role:      input.Role,
	}
	if err := s.riders.Update(ctx, id, changes); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Rider{}, fmt.Errorf("%w: email or student id already registered", ErrConflict)
		}
		return models.Rider{}, storeErr(err)
	}

	switch {
	case relink && target != nil:
		updated, err := s.riders.GetByID(ctx, id)
		if err != nil {
			return models.Rider{}, storeErr(err)
		}
		if err := s.linkRider(ctx, updated, *target); err != nil {
			return models.Rider{}, err
		}
	case !relink && role == models.RiderRoleDriver && currentBusID != "" && changes.Name != nil:
		// Buses carry a copy of the driver's name.
		if err := s.buses.SetDriver(ctx, currentBusID, &rider.ID, changes.Name); err != nil {
			return models.Rider{}, storeErr(err)
		}
	}

	return s.GetRider(ctx, id)
}

// DeleteRider removes the rider's occupant or driver link first.
func (s *FleetService) DeleteRider(ctx context.Context, id string) error {
	rider, err := s.riders.GetByID(ctx, id)
	if err != nil {
		return storeErr(err)
	}

	switch rider.Role {
	case models.RiderRoleStudent:
		if rider.BusID != nil {
			if err := s.buses.RemoveOccupant(ctx, *rider.BusID, rider.ID); err != nil {
				return err
			}
		}
	case models.RiderRoleDriver:
		if err := s.buses.ClearDriver(ctx, rider.ID); err != nil {
			return err
		}
	}

	if err := s.riders.Delete(ctx, rider.ID); err != nil {
		return storeErr(err)
	}
	s.log.Info().Str("rider_id", rider.ID).Str("role", string(rider.Role)).Msg("rider deleted")
	return nil
}

func (s *FleetService) GetRider(ctx context.Context, id string) (models.Rider, error) {
	rider, err := s.riders.GetByID(ctx, id)
	return rider, storeErr(err)
}

func (s *FleetService) ListRiders(ctx context.Context, filter models.RiderFilter) ([]models.Rider, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, validationf("invalid role %q", filter.Role)
	}
	return s.riders.List(ctx, filter)
}

type ImportRow struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	StudentID string `json:"studentId"`
	Phone     string `json:"phone"`
	BusNumber string `json:"busNumber"`
}

type ImportResult struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BulkImport creates riders one by one. A failed row is reported and does
// not stop the rest.
func (s *FleetService) BulkImport(ctx context.Context, rows []ImportRow) ([]ImportResult, []ImportResult, error) {
	if len(rows) == 0 {
		return nil, nil, validationf("no users provided")
	}

	var imported, failed []ImportResult
	for _, row := range rows {
		password := row.Password
		if password == "" {
			password = DefaultImportPassword
		}
		role := models.RiderRole(strings.ToLower(strings.TrimSpace(row.Role)))
		if role == "" {
			role = models.RiderRoleStudent
		}

		rider, err := s.CreateRider(ctx, CreateRiderInput{
			Name:      row.Name,
			Email:     row.Email,
			Password:  password,
			Role:      role,
			StudentID: row.StudentID,
			Phone:     row.Phone,
			BusNumber: row.BusNumber,
		})
		if err != nil {
			if ctx.Err() != nil {
				return imported, failed, ctx.Err()
			}
			failed = append(failed, ImportResult{Email: row.Email, Status: "error", Error: err.Error()})
			continue
		}
		imported = append(imported, ImportResult{Email: rider.Email, Name: rider.Name, Role: string(rider.Role), Status: "success"})
	}
	return imported, failed, nil
}

// StudentBus is the bus a student rides.
func (s *FleetService) StudentBus(ctx context.Context, riderID string) (models.Bus, error) {
	rider, err := s.riders.GetByID(ctx, riderID)
	if err != nil {
		return models.Bus{}, storeErr(err)
	}
	if rider.BusID == nil {
		return models.Bus{}, ErrNotAssigned
	}
	bus, err := s.buses.Get(ctx, *rider.BusID)
	if err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return models.Bus{}, ErrNotAssigned
		}
		return models.Bus{}, err
	}
	return bus, nil
}

type DriverView struct {
	Driver    models.Rider
	Bus       *models.Bus
	Occupants []models.Rider
}

func (s *FleetService) DriverDashboard(ctx context.Context, driverID string) (DriverView, error) {
	driver, err := s.riders.GetByID(ctx, driverID)
	if err != nil {
		return DriverView{}, storeErr(err)
	}
	view := DriverView{Driver: driver}

	bus, err := s.buses.FindByDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return view, nil
		}
		return DriverView{}, err
	}
	view.Bus = &bus

	for _, id := range bus.OccupantIDs {
		occupant, err := s.riders.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrRiderNotFound) {
				continue
			}
			return DriverView{}, err
		}
		view.Occupants = append(view.Occupants, occupant)
	}
	return view, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}
