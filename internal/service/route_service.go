package service

import (
	"context"

	"bustrack/internal/geo"
	"bustrack/internal/models"
	"bustrack/internal/routing"
)

type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination geo.Point, profile string) routing.Route
}

type RouteService struct {
	fleet    *FleetService
	resolver RouteResolver
}

func NewRouteService(fleet *FleetService, resolver RouteResolver) *RouteService {
	return &RouteService{fleet: fleet, resolver: resolver}
}

// Route never fails on provider trouble; only bad coordinates are
// rejected.
func (s *RouteService) Route(ctx context.Context, origin, destination geo.Point, profile string) (routing.Route, error) {
	if !origin.Valid() || !destination.Valid() {
		return routing.Route{}, validationf("valid origin and destination coordinates are required")
	}
	return s.resolver.Resolve(ctx, origin, destination, profile), nil
}

type StudentRoute struct {
	Bus   models.Bus
	Route routing.Route
}

// StudentRoute resolves the way from the student to their bus.
func (s *RouteService) StudentRoute(ctx context.Context, riderID string, origin geo.Point) (StudentRoute, error) {
	if !origin.Valid() {
		return StudentRoute{}, validationf("valid latitude and longitude are required")
	}
	bus, err := s.fleet.StudentBus(ctx, riderID)
	if err != nil {
		return StudentRoute{}, err
	}
	if !bus.HasPosition() {
		return StudentRoute{}, validationf("bus %s has not reported a position yet", bus.BusNumber)
	}

	destination := geo.Point{Lat: *bus.Latitude, Lng: *bus.Longitude}
	return StudentRoute{
		Bus:   bus,
		Route: s.resolver.Resolve(ctx, origin, destination, ""),
	}, nil
}
