package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"bustrack/internal/models"
	"bustrack/internal/ratelimit"
	"bustrack/internal/repository"
	"bustrack/internal/service"
)

const (
	SourceDriver = "driver"
	SourceAdmin  = "admin"
)

type BusStore interface {
	Get(ctx context.Context, id string) (models.Bus, error)
	FindByDriver(ctx context.Context, driverID string) (models.Bus, error)
	ApplyTelemetry(ctx context.Context, id string, t models.Telemetry) error
}

// EventSink receives every accepted location after it has been persisted
// and broadcast. Sink failures are logged and never fail the submission.
type EventSink interface {
	LocationAccepted(ctx context.Context, rec models.LocationRecord) error
}

type Observer interface {
	LocationAccepted(source string)
	LocationRejected(code string)
	SubscribersDropped(n int)
	ConnectionOpened(role models.RiderRole)
	ConnectionClosed(role models.RiderRole)
}

type nopObserver struct{}

func (nopObserver) LocationAccepted(string)           {}
func (nopObserver) LocationRejected(string)           {}
func (nopObserver) SubscribersDropped(int)            {}
func (nopObserver) ConnectionOpened(models.RiderRole) {}
func (nopObserver) ConnectionClosed(models.RiderRole) {}

// LocationPayload is a driver's position report. With StatusOnly set only
// Status is applied.
type LocationPayload struct {
	Latitude   *float64          `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64          `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Speed      *float64          `json:"speed" validate:"omitempty,gte=0"`
	Accuracy   *float64          `json:"accuracy" validate:"omitempty,gte=0"`
	Status     *models.BusStatus `json:"status" validate:"omitempty,oneof=moving stopped delayed offline"`
	StatusOnly bool              `json:"updateStatusOnly"`
}

// AdminLocationPayload replaces the runtime fields of a bus outright.
type AdminLocationPayload struct {
	Latitude  *float64          `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64          `json:"longitude" validate:"required,gte=-180,lte=180"`
	Speed     *float64          `json:"speed" validate:"omitempty,gte=0"`
	Accuracy  *float64          `json:"accuracy" validate:"omitempty,gte=0"`
	Status    *models.BusStatus `json:"status" validate:"omitempty,oneof=moving stopped delayed offline"`
}

// Channel accepts position reports, persists them through the bus store
// and fans them out over the registry.
type Channel struct {
	registry *Registry
	buses    BusStore
	limiter  ratelimit.Limiter
	sinks    []EventSink
	observer Observer
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Channel)

func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Channel) { c.limiter = l }
}

func WithSinks(sinks ...EventSink) Option {
	return func(c *Channel) { c.sinks = append(c.sinks, sinks...) }
}

func WithObserver(o Observer) Option {
	return func(c *Channel) { c.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

func NewChannel(registry *Registry, buses BusStore, log zerolog.Logger, opts ...Option) *Channel {
	c := &Channel{
		registry: registry,
		buses:    buses,
		limiter:  ratelimit.Unlimited{},
		observer: nopObserver{},
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Registry() *Registry { return c.registry }

func (c *Channel) authorize(session *models.Session, role models.RiderRole) error {
	if session == nil || session.Expired(c.now()) {
		return service.ErrUnauthenticated
	}
	if session.Role != role {
		return fmt.Errorf("%w: %s role required", service.ErrForbidden, role)
	}
	return nil
}

func (c *Channel) reject(err error) error {
	c.observer.LocationRejected(service.Code(err))
	return err
}

// SubmitLocation applies a driver's report to the driver's assigned bus
// and broadcasts the result. origin keys the rate limit.
func (c *Channel) SubmitLocation(ctx context.Context, session *models.Session, origin string, p LocationPayload) (Ack, error) {
	if err := c.authorize(session, models.RiderRoleDriver); err != nil {
		return Ack{}, c.reject(err)
	}

	decision, err := c.limiter.Allow(ctx, origin)
	if err != nil {
		c.log.Warn().Err(err).Str("origin", origin).Msg("rate limiter unavailable, admitting")
	} else if !decision.Allowed {
		return Ack{}, c.reject(fmt.Errorf("%w: retry after %s", service.ErrRateLimited, decision.RetryAfter.Round(time.Second)))
	}

	if err := c.checkLocation(p); err != nil {
		return Ack{}, c.reject(err)
	}

	bus, err := c.buses.FindByDriver(ctx, session.RiderID)
	if err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return Ack{}, c.reject(service.ErrNotAssigned)
		}
		return Ack{}, c.reject(fmt.Errorf("find driver bus: %w", err))
	}

	t := models.Telemetry{Status: p.Status, UpdatedAt: c.now().UTC()}
	if !p.StatusOnly {
		t.Latitude = p.Latitude
		t.Longitude = p.Longitude
		t.Speed = p.Speed
		t.Accuracy = p.Accuracy
	}

	return c.apply(ctx, bus, t, SourceDriver)
}

func (c *Channel) checkLocation(p LocationPayload) error {
	if err := c.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", service.ErrValidation, *p.Status)
	}
	if p.StatusOnly {
		if p.Status == nil {
			return fmt.Errorf("%w: status is required for a status-only update", service.ErrValidation)
		}
		return nil
	}
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be sent together", service.ErrValidation)
	}
	if p.Latitude == nil && p.Speed == nil && p.Accuracy == nil && p.Status == nil {
		return fmt.Errorf("%w: empty location update", service.ErrValidation)
	}
	return nil
}

// AdminSetLocation overwrites the runtime fields of any bus. Speed
// defaults to 0 and status to moving.
func (c *Channel) AdminSetLocation(ctx context.Context, session *models.Session, busID string, p AdminLocationPayload) (Ack, error) {
	if err := c.authorize(session, models.RiderRoleAdmin); err != nil {
		return Ack{}, c.reject(err)
	}
	if err := c.validate.Struct(p); err != nil {
		return Ack{}, c.reject(fmt.Errorf("%w: %v", service.ErrValidation, err))
	}
	if p.Status != nil && !p.Status.Valid() {
		return Ack{}, c.reject(fmt.Errorf("%w: invalid status %q", service.ErrValidation, *p.Status))
	}

	bus, err := c.buses.Get(ctx, busID)
	if err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return Ack{}, c.reject(fmt.Errorf("%w: bus not found", service.ErrNotFound))
		}
		return Ack{}, c.reject(fmt.Errorf("get bus: %w", err))
	}

	speed := 0.0
	if p.Speed != nil {
		speed = *p.Speed
	}
	status := models.BusStatusMoving
	if p.Status != nil {
		status = *p.Status
	}

	t := models.Telemetry{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     &speed,
		Accuracy:  p.Accuracy,
		Status:    &status,
		Full:      true,
		UpdatedAt: c.now().UTC(),
	}
	return c.apply(ctx, bus, t, SourceAdmin)
}

// apply persists t and, only once that succeeded, broadcasts the new state.
func (c *Channel) apply(ctx context.Context, bus models.Bus, t models.Telemetry, source string) (Ack, error) {
	if err := c.buses.ApplyTelemetry(ctx, bus.ID, t); err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			if source == SourceAdmin {
				return Ack{}, c.reject(fmt.Errorf("%w: bus not found", service.ErrNotFound))
			}
			return Ack{}, c.reject(service.ErrNotAssigned)
		}
		c.log.Error().Err(err).Str("bus_id", bus.ID).Str("source", source).Msg("persist location failed")
		return Ack{}, c.reject(fmt.Errorf("persist location: %w", err))
	}

	merged := mergeTelemetry(bus, t)
	update := busUpdateFrom(merged)
	count := TrackingCount{BusID: merged.ID, Count: merged.OccupantCount()}

	dropped := 0
	publish := func(room string, ev Event) {
		_, n := c.registry.Publish(room, ev)
		dropped += n
	}
	publish(BusRoom(merged.ID), Event{Name: EventBusUpdate, Data: update})
	publish(AdminRoom, Event{Name: EventBusLiveUpdate, Data: update})
	publish(BusRoom(merged.ID), Event{Name: EventTrackingCount, Data: count})
	if merged.DriverID != nil {
		publish(DriverChannel(*merged.DriverID), Event{Name: EventTrackingCount, Data: count})
	}
	if dropped > 0 {
		c.observer.SubscribersDropped(dropped)
	}
	c.observer.LocationAccepted(source)

	rec := models.LocationRecord{
		BusID:      merged.ID,
		Latitude:   merged.Latitude,
		Longitude:  merged.Longitude,
		Speed:      merged.Speed,
		Status:     merged.Status,
		Source:     source,
		RecordedAt: t.UpdatedAt,
	}
	for _, sink := range c.sinks {
		if err := sink.LocationAccepted(ctx, rec); err != nil {
			c.log.Warn().Err(err).Str("bus_id", merged.ID).Msg("location sink failed")
		}
	}

	return Ack{Success: true, TrackingCount: count.Count, Timestamp: t.UpdatedAt}, nil
}

// mergeTelemetry mirrors the store's partial update on an in-memory copy,
// so the broadcast carries the state that was just written.
func mergeTelemetry(bus models.Bus, t models.Telemetry) models.Bus {
	if t.Latitude != nil {
		bus.Latitude = t.Latitude
	}
	if t.Longitude != nil {
		bus.Longitude = t.Longitude
	}
	if t.Speed != nil {
		bus.Speed = *t.Speed
	}
	if t.Accuracy != nil || t.Full {
		bus.Accuracy = t.Accuracy
	}
	if t.Status != nil {
		bus.Status = *t.Status
	}
	bus.UpdatedAt = t.UpdatedAt
	return bus
}

// Subscribe adds sub to the room of busID. Any authenticated role may
// watch any bus.
func (c *Channel) Subscribe(ctx context.Context, session *models.Session, sub Subscriber, busID string) error {
	if session == nil || session.Expired(c.now()) {
		return service.ErrUnauthenticated
	}
	if busID == "" {
		return fmt.Errorf("%w: busId is required", service.ErrValidation)
	}
	if _, err := c.buses.Get(ctx, busID); err != nil {
		if errors.Is(err, repository.ErrBusNotFound) {
			return fmt.Errorf("%w: bus not found", service.ErrNotFound)
		}
		return fmt.Errorf("get bus: %w", err)
	}
	c.registry.Join(sub, BusRoom(busID))
	return nil
}

func (c *Channel) Unsubscribe(sub Subscriber, busID string) {
	c.registry.Leave(sub.ID(), BusRoom(busID))
}

// Connect registers a new connection: admins join the live feed and
// drivers join their own channel and are announced as online.
func (c *Channel) Connect(ctx context.Context, session models.Session, sub Subscriber) {
	c.observer.ConnectionOpened(session.Role)

	switch session.Role {
	case models.RiderRoleAdmin:
		c.registry.Join(sub, AdminRoom)
	case models.RiderRoleDriver:
		c.registry.Join(sub, DriverChannel(session.RiderID))
		if c.registry.DriverOnline(session.RiderID) {
			c.announceDriver(ctx, session, DriverStatusOnline)
		}
	}
}

// Disconnect drops every membership of the connection. The last driver
// connection to close announces the driver as offline.
func (c *Channel) Disconnect(ctx context.Context, session models.Session, sub Subscriber) {
	c.registry.LeaveAll(sub.ID())
	c.observer.ConnectionClosed(session.Role)

	if session.Role == models.RiderRoleDriver && c.registry.DriverOffline(session.RiderID) {
		c.announceDriver(ctx, session, DriverStatusOffline)
	}
}

func (c *Channel) announceDriver(ctx context.Context, session models.Session, status string) {
	payload := DriverStatus{
		DriverID:   session.RiderID,
		DriverName: session.Name,
		Status:     status,
		Timestamp:  c.now().UTC(),
	}
	if bus, err := c.buses.FindByDriver(ctx, session.RiderID); err == nil {
		payload.BusID = bus.ID
	}
	c.registry.Publish(AdminRoom, Event{Name: EventDriverStatus, Data: payload})
	c.log.Debug().Str("driver_id", session.RiderID).Str("status", status).Msg("driver presence changed")
}
