// Package routing resolves road routes through OpenRouteService and
// degrades to straight-line estimates whenever the provider cannot answer.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/config"
	"bustrack/internal/geo"
)

// ErrUpstreamUnavailable marks every provider failure. It never leaves
// this package: Resolve converts it into a fallback route.
var ErrUpstreamUnavailable = errors.New("routing provider unavailable")

const maxResponseBytes = 4 << 20

type Route struct {
	DistanceKm  float64     `json:"distanceKm"`
	DurationMin float64     `json:"durationMin"`
	EtaMinutes  int         `json:"etaMinutes"`
	Polyline    []geo.Point `json:"polyline"`
	IsFallback  bool        `json:"isFallback"`
}

type Observer interface {
	RouteResolved(fallback bool, elapsed time.Duration)
}

type Resolver struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	profile  string
	timeout  time.Duration
	speedKmh float64
	log      zerolog.Logger
	observer Observer
}

type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

func NewResolver(cfg config.RoutingConfig, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		profile:  cfg.Profile,
		timeout:  cfg.Timeout,
		speedKmh: cfg.AssumedSpeedKmh,
		log:      log,
	}
	if r.profile == "" {
		r.profile = "driving-car"
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	if r.speedKmh <= 0 {
		r.speedKmh = geo.DefaultSpeedKmh
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.apiKey == "" {
		r.log.Warn().Msg("routing api key not configured, using straight-line estimates")
	}
	return r
}

// Enabled reports whether provider calls are attempted at all.
func (r *Resolver) Enabled() bool {
	return r.apiKey != ""
}

// Resolve never fails: any provider problem yields a fallback route.
func (r *Resolver) Resolve(ctx context.Context, origin, destination geo.Point, profile string) Route {
	start := time.Now()
	if profile == "" {
		profile = r.profile
	}

	route, err := r.fetch(ctx, origin, destination, profile)
	if err != nil {
		r.log.Debug().Err(err).Str("profile", profile).Msg("route fallback")
		route = r.Fallback(origin, destination)
	}

	if r.observer != nil {
		r.observer.RouteResolved(route.IsFallback, time.Since(start))
	}
	return route
}

// Fallback is the straight-line route at the assumed speed.
func (r *Resolver) Fallback(origin, destination geo.Point) Route {
	distance := geo.HaversineKm(origin, destination)
	return Route{
		DistanceKm:  distance,
		DurationMin: geo.TravelMinutes(distance, r.speedKmh),
		EtaMinutes:  geo.EstimateEtaMinutes(distance, r.speedKmh),
		Polyline:    []geo.Point{origin, destination},
		IsFallback:  true,
	}
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance *float64 `json:"distance"`
				Duration *float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (r *Resolver) fetch(ctx context.Context, origin, destination geo.Point, profile string) (Route, error) {
	if r.apiKey == "" {
		return Route{}, fmt.Errorf("%w: no api key", ErrUpstreamUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The provider expects [lng, lat] pairs.
	body, err := json.Marshal(directionsRequest{Coordinates: [][2]float64{
		{origin.Lng, origin.Lat},
		{destination.Lng, destination.Lat},
	}})
	if err != nil {
		return Route{}, fmt.Errorf("%w: encode request: %v", ErrUpstreamUnavailable, err)
	}

	url := fmt.Sprintf("%s/directions/%s/geojson", r.baseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Route{}, fmt.Errorf("%w: build request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Authorization", r.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Route{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var decoded directionsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return Route{}, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
	}

	return toRoute(decoded)
}

func toRoute(decoded directionsResponse) (Route, error) {
	if len(decoded.Features) == 0 {
		return Route{}, fmt.Errorf("%w: no route found", ErrUpstreamUnavailable)
	}
	feature := decoded.Features[0]
	summary := feature.Properties.Summary
	if summary.Distance == nil || summary.Duration == nil || *summary.Distance < 0 || *summary.Duration < 0 {
		return Route{}, fmt.Errorf("%w: missing summary", ErrUpstreamUnavailable)
	}

	polyline := make([]geo.Point, 0, len(feature.Geometry.Coordinates))
	for _, coord := range feature.Geometry.Coordinates {
		if len(coord) < 2 {
			return Route{}, fmt.Errorf("%w: malformed coordinate", ErrUpstreamUnavailable)
		}
		polyline = append(polyline, geo.Point{Lat: coord[1], Lng: coord[0]})
	}

	durationMin := *summary.Duration / 60
	return Route{
		DistanceKm:  *summary.Distance / 1000,
		DurationMin: durationMin,
		EtaMinutes:  int(math.Ceil(durationMin)),
		Polyline:    polyline,
		IsFallback:  false,
	}, nil
}
