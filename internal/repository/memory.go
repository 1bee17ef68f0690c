package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"bustrack/internal/models"
)

// MemoryStore backs the memory database driver and the tests. All
// repositories handed out by one store share its lock and state.
type MemoryStore struct {
	mu       sync.RWMutex
	buses    map[string]models.Bus
	riders   map[string]models.Rider
	sessions map[string]models.Session
	history  []models.LocationRecord
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buses:    make(map[string]models.Bus),
		riders:   make(map[string]models.Rider),
		sessions: make(map[string]models.Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Buses() *MemoryBusRepository        { return &MemoryBusRepository{s: s} }
func (s *MemoryStore) Riders() *MemoryRiderRepository     { return &MemoryRiderRepository{s: s} }
func (s *MemoryStore) Sessions() *MemorySessionRepository { return &MemorySessionRepository{s: s} }
func (s *MemoryStore) History() *MemoryHistoryRepository  { return &MemoryHistoryRepository{s: s} }

func cloneBus(b models.Bus) models.Bus {
	b.OccupantIDs = slices.Clone(b.OccupantIDs)
	if b.OccupantIDs == nil {
		b.OccupantIDs = []string{}
	}
	b.DriverID = clonePtr(b.DriverID)
	b.DriverName = clonePtr(b.DriverName)
	b.Latitude = clonePtr(b.Latitude)
	b.Longitude = clonePtr(b.Longitude)
	b.Accuracy = clonePtr(b.Accuracy)
	return b
}

func cloneRider(r models.Rider) models.Rider {
	r.PasswordHash = slices.Clone(r.PasswordHash)
	r.StudentID = clonePtr(r.StudentID)
	r.Phone = clonePtr(r.Phone)
	r.BusID = clonePtr(r.BusID)
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

type MemoryBusRepository struct {
	s *MemoryStore
}

func (r *MemoryBusRepository) Create(_ context.Context, bus models.Bus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.buses {
		switch {
		case existing.ID == bus.ID:
			return &DuplicateError{Constraint: "buses_pkey"}
		case existing.BusID == bus.BusID:
			return &DuplicateError{Constraint: "buses_bus_id_key"}
		case existing.BusNumber == bus.BusNumber:
			return &DuplicateError{Constraint: "buses_bus_number_key"}
		case bus.DriverID != nil && existing.DriverID != nil && *existing.DriverID == *bus.DriverID:
			return &DuplicateError{Constraint: "buses_driver_id_key"}
		}
	}

	now := r.s.now()
	bus.CreatedAt = now
	bus.UpdatedAt = now
	r.s.buses[bus.ID] = cloneBus(bus)
	return nil
}

func (r *MemoryBusRepository) Get(_ context.Context, id string) (models.Bus, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bus, ok := r.s.buses[id]
	if !ok {
		return models.Bus{}, ErrBusNotFound
	}
	return cloneBus(bus), nil
}

func (r *MemoryBusRepository) find(match func(models.Bus) bool) (models.Bus, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, bus := range r.s.buses {
		if match(bus) {
			return cloneBus(bus), nil
		}
	}
	return models.Bus{}, ErrBusNotFound
}

func (r *MemoryBusRepository) GetByNumber(_ context.Context, busNumber string) (models.Bus, error) {
	return r.find(func(b models.Bus) bool { return b.BusNumber == busNumber })
}

func (r *MemoryBusRepository) FindByDriver(_ context.Context, driverID string) (models.Bus, error) {
	return r.find(func(b models.Bus) bool { return b.DriverID != nil && *b.DriverID == driverID })
}

func (r *MemoryBusRepository) List(_ context.Context, filter models.BusFilter) ([]models.Bus, error) {
	search := strings.TrimSpace(filter.Search)
	return r.collect(filter.Limit, func(b models.Bus) bool {
		if filter.Status != "" && b.Status != filter.Status {
			return false
		}
		if search == "" {
			return true
		}
		driverName := ""
		if b.DriverName != nil {
			driverName = *b.DriverName
		}
		return containsFold(b.BusNumber, search) || containsFold(b.BusID, search) ||
			containsFold(b.RouteName, search) || containsFold(driverName, search)
	}), nil
}

func (r *MemoryBusRepository) ListUpdatedSince(_ context.Context, since time.Time) ([]models.Bus, error) {
	return r.collect(0, func(b models.Bus) bool { return !b.UpdatedAt.Before(since) }), nil
}

func (r *MemoryBusRepository) collect(limit int, keep func(models.Bus) bool) []models.Bus {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.Bus
	for _, bus := range r.s.buses {
		if keep(bus) {
			out = append(out, cloneBus(bus))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryBusRepository) Counts(_ context.Context, activeSince time.Time) (models.BusCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := models.BusCounts{Total: len(r.s.buses)}
	for _, bus := range r.s.buses {
		if !bus.UpdatedAt.Before(activeSince) {
			counts.Active++
		}
	}
	return counts, nil
}

func (r *MemoryBusRepository) UpdateDetails(_ context.Context, id string, details models.BusDetails) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	bus, ok := r.s.buses[id]
	if !ok {
		return ErrBusNotFound
	}
	if details.BusNumber != nil {
		for _, other := range r.s.buses {
			if other.ID != id && other.BusNumber == *details.BusNumber {
				return &DuplicateError{Constraint: "buses_bus_number_key"}
			}
		}
		bus.BusNumber = *details.BusNumber
	}
	if details.RouteName != nil {
		bus.RouteName = *details.RouteName
	}
	if details.Capacity != nil {
		bus.Capacity = *details.Capacity
	}
	if details.Status != nil {
		bus.Status = *details.Status
	}
	bus.UpdatedAt = r.s.now()
	r.s.buses[id] = bus
	return nil
}

func (r *MemoryBusRepository) ApplyTelemetry(_ context.Context, id string, t models.Telemetry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	bus, ok := r.s.buses[id]
	if !ok {
		return ErrBusNotFound
	}
	if t.Latitude != nil {
		bus.Latitude = clonePtr(t.Latitude)
	}
	if t.Longitude != nil {
		bus.Longitude = clonePtr(t.Longitude)
	}
	if t.Speed != nil {
		bus.Speed = *t.Speed
	}
	if t.Accuracy != nil || t.Full {
		bus.Accuracy = clonePtr(t.Accuracy)
	}
	if t.Status != nil {
		bus.Status = *t.Status
	}
	bus.UpdatedAt = t.UpdatedAt
	r.s.buses[id] = bus
	return nil
}

func (r *MemoryBusRepository) SetDriver(_ context.Context, busID string, driverID *string, driverName *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	bus, ok := r.s.buses[busID]
	if !ok {
		return ErrBusNotFound
	}
	if driverID != nil {
		for _, other := range r.s.buses {
			if other.ID != busID && other.DriverID != nil && *other.DriverID == *driverID {
				return &DuplicateError{Constraint: "buses_driver_id_key"}
			}
		}
	}
	bus.DriverID = clonePtr(driverID)
	bus.DriverName = clonePtr(driverName)
	bus.UpdatedAt = r.s.now()
	r.s.buses[busID] = bus
	return nil
}

func (r *MemoryBusRepository) ClearDriver(_ context.Context, driverID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, bus := range r.s.buses {
		if bus.DriverID != nil && *bus.DriverID == driverID {
			bus.DriverID = nil
			bus.DriverName = nil
			bus.UpdatedAt = r.s.now()
			r.s.buses[id] = bus
		}
	}
	return nil
}

func (r *MemoryBusRepository) AddOccupant(_ context.Context, busID string, riderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	bus, ok := r.s.buses[busID]
	if !ok {
		return ErrBusNotFound
	}
	if !slices.Contains(bus.OccupantIDs, riderID) {
		bus.OccupantIDs = append(slices.Clone(bus.OccupantIDs), riderID)
		r.s.buses[busID] = bus
	}
	return nil
}

func (r *MemoryBusRepository) RemoveOccupant(_ context.Context, busID string, riderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	bus, ok := r.s.buses[busID]
	if !ok {
		return nil
	}
	bus.OccupantIDs = slices.DeleteFunc(slices.Clone(bus.OccupantIDs), func(id string) bool { return id == riderID })
	r.s.buses[busID] = bus
	return nil
}

func (r *MemoryBusRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.buses[id]; !ok {
		return ErrBusNotFound
	}
	delete(r.s.buses, id)
	return nil
}

type MemoryRiderRepository struct {
	s *MemoryStore
}

func (r *MemoryRiderRepository) checkUnique(rider models.Rider) error {
	for _, existing := range r.s.riders {
		if existing.ID == rider.ID {
			continue
		}
		if strings.EqualFold(existing.Email, rider.Email) {
			return &DuplicateError{Constraint: "riders_email_key"}
		}
		if rider.StudentID != nil && existing.StudentID != nil && *existing.StudentID == *rider.StudentID {
			return &DuplicateError{Constraint: "riders_student_id_key"}
		}
	}
	return nil
}

func (r *MemoryRiderRepository) Create(_ context.Context, rider models.Rider) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.riders[rider.ID]; ok {
		return &DuplicateError{Constraint: "riders_pkey"}
	}
	if err := r.checkUnique(rider); err != nil {
		return err
	}

	now := r.s.now()
	rider.CreatedAt = now
	rider.UpdatedAt = now
	r.s.riders[rider.ID] = cloneRider(rider)
	return nil
}

func (r *MemoryRiderRepository) GetByID(_ context.Context, id string) (models.Rider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rider, ok := r.s.riders[id]
	if !ok {
		return models.Rider{}, ErrRiderNotFound
	}
	return cloneRider(rider), nil
}

func (r *MemoryRiderRepository) FindByEmail(_ context.Context, email string) (models.Rider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rider := range r.s.riders {
		if rider.Email == email {
			return cloneRider(rider), nil
		}
	}
	return models.Rider{}, ErrRiderNotFound
}

func (r *MemoryRiderRepository) List(_ context.Context, filter models.RiderFilter) ([]models.Rider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.TrimSpace(filter.Search)
	var out []models.Rider
	for _, rider := range r.s.riders {
		if filter.Role != "" && rider.Role != filter.Role {
			continue
		}
		if search != "" {
			studentID := ""
			if rider.StudentID != nil {
				studentID = *rider.StudentID
			}
			if !containsFold(rider.Name, search) && !containsFold(rider.Email, search) && !containsFold(studentID, search) {
				continue
			}
		}
		out = append(out, cloneRider(rider))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRiderRepository) Update(_ context.Context, id string, changes models.RiderChanges) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rider, ok := r.s.riders[id]
	if !ok {
		return ErrRiderNotFound
	}
	if changes.Name != nil {
		rider.Name = *changes.Name
	}
	if changes.Email != nil {
		rider.Email = *changes.Email
	}
	if changes.Phone != nil {
		rider.Phone = clonePtr(changes.Phone)
	}
	if changes.StudentID != nil {
		rider.StudentID = clonePtr(changes.StudentID)
	}
	if changes.Role != nil {
		rider.Role = *changes.Role
	}
	if err := r.checkUnique(rider); err != nil {
		return err
	}
	rider.UpdatedAt = r.s.now()
	r.s.riders[id] = rider
	return nil
}

func (r *MemoryRiderRepository) SetBus(_ context.Context, riderID string, busID *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rider, ok := r.s.riders[riderID]
	if !ok {
		return ErrRiderNotFound
	}
	rider.BusID = clonePtr(busID)
	rider.UpdatedAt = r.s.now()
	r.s.riders[riderID] = rider
	return nil
}

func (r *MemoryRiderRepository) ClearBus(_ context.Context, busID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, rider := range r.s.riders {
		if rider.BusID != nil && *rider.BusID == busID {
			rider.BusID = nil
			rider.UpdatedAt = r.s.now()
			r.s.riders[id] = rider
		}
	}
	return nil
}

func (r *MemoryRiderRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.riders[id]; !ok {
		return ErrRiderNotFound
	}
	delete(r.s.riders, id)
	return nil
}

func (r *MemoryRiderRepository) CountByRole(_ context.Context) (map[models.RiderRole]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[models.RiderRole]int)
	for _, rider := range r.s.riders {
		counts[rider.Role]++
	}
	return counts, nil
}

func (r *MemoryRiderRepository) CreatedPerDay(_ context.Context, since time.Time) ([]models.DateCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	times := make([]time.Time, 0, len(r.s.riders))
	for _, rider := range r.s.riders {
		times = append(times, rider.CreatedAt)
	}
	return countPerDay(times, since), nil
}

func countPerDay(times []time.Time, since time.Time) []models.DateCount {
	buckets := make(map[string]int)
	for _, t := range times {
		if t.Before(since) {
			continue
		}
		buckets[t.UTC().Format("2006-01-02")]++
	}
	out := make([]models.DateCount, 0, len(buckets))
	for day, count := range buckets {
		out = append(out, models.DateCount{Date: day, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

type MemorySessionRepository struct {
	s *MemoryStore
}

func (r *MemorySessionRepository) Create(_ context.Context, session models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.sessions[session.ID] = session
	return nil
}

func (r *MemorySessionRepository) GetByID(_ context.Context, id string) (models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if session.Expired(r.s.now()) {
		delete(r.s.sessions, id)
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (r *MemorySessionRepository) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.s.sessions, id)
	return nil
}

type MemoryHistoryRepository struct {
	s *MemoryStore
}

func (r *MemoryHistoryRepository) Insert(_ context.Context, rec models.LocationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.history = append(r.s.history, rec)
	return nil
}

func (r *MemoryHistoryRepository) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	before := len(r.s.history)
	r.s.history = slices.DeleteFunc(r.s.history, func(rec models.LocationRecord) bool {
		return rec.RecordedAt.Before(cutoff)
	})
	return int64(before - len(r.s.history)), nil
}

func (r *MemoryHistoryRepository) CountPerDay(_ context.Context, since time.Time) ([]models.DateCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	times := make([]time.Time, 0, len(r.s.history))
	for _, rec := range r.s.history {
		times = append(times, rec.RecordedAt)
	}
	return countPerDay(times, since), nil
}
