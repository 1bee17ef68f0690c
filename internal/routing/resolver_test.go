package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
	"bustrack/internal/geo"
)

var (
	bus   = geo.Point{Lat: 12.9716, Lng: 77.5946}
	rider = geo.Point{Lat: 12.9800, Lng: 77.6000}
)

type recordingObserver struct {
	mu        sync.Mutex
	fallbacks []bool
}

func (o *recordingObserver) RouteResolved(fallback bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, fallback)
}

func newTestResolver(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Resolver {
	return NewResolver(config.RoutingConfig{
		BaseURL:         baseURL,
		APIKey:          apiKey,
		Profile:         "driving-car",
		Timeout:         timeout,
		AssumedSpeedKmh: 30,
	}, zerolog.Nop(), opts...)
}

func TestResolveWithoutCredentialFallsBack(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := newTestResolver(srv.URL, "", time.Second)
	route := r.Resolve(context.Background(), rider, bus, "")

	assert.False(t, called, "provider must not be called without a key")
	assert.True(t, route.IsFallback)
	distance := geo.HaversineKm(rider, bus)
	assert.InDelta(t, distance, route.DistanceKm, 1e-9)
	assert.Equal(t, geo.EstimateEtaMinutes(distance, 30), route.EtaMinutes)
	assert.InDelta(t, float64(route.EtaMinutes), route.DurationMin, 0.5)
	assert.Equal(t, 2, route.EtaMinutes)
	assert.Equal(t, []geo.Point{rider, bus}, route.Polyline)
}

func TestResolveProviderSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody directionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		gotPath = req.URL.Path
		_ = json.NewDecoder(req.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(`{
			"features": [{
				"properties": {"summary": {"distance": 2350.0, "duration": 301.0}},
				"geometry": {"type": "LineString", "coordinates": [[77.6, 12.98], [77.597, 12.975], [77.5946, 12.9716]]}
			}]
		}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	r := newTestResolver(srv.URL, "secret-key", time.Second, WithObserver(obs))
	route := r.Resolve(context.Background(), rider, bus, "foot-walking")

	require.False(t, route.IsFallback)
	assert.Equal(t, "secret-key", gotAuth)
	assert.Equal(t, "/directions/foot-walking/geojson", gotPath)
	assert.Equal(t, [][2]float64{{rider.Lng, rider.Lat}, {bus.Lng, bus.Lat}}, gotBody.Coordinates)
	assert.InDelta(t, 2.35, route.DistanceKm, 1e-9)
	assert.InDelta(t, 301.0/60, route.DurationMin, 1e-9)
	assert.Equal(t, 6, route.EtaMinutes, "display minutes round up")
	require.Len(t, route.Polyline, 3)
	assert.Equal(t, geo.Point{Lat: 12.98, Lng: 77.6}, route.Polyline[0])
	assert.Equal(t, []bool{false}, obs.fallbacks)
}

func TestResolveFailuresFallBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"features": [`))
			},
		},
		{
			name: "no features",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"features": []}`))
			},
		},
		{
			name: "missing summary",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"features": [{"properties": {}, "geometry": {"coordinates": []}}]}`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, req *http.Request) {
				select {
				case <-req.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			obs := &recordingObserver{}
			r := newTestResolver(srv.URL, "key", 100*time.Millisecond, WithObserver(obs))
			route := r.Resolve(context.Background(), rider, bus, "")

			assert.True(t, route.IsFallback)
			assert.InDelta(t, geo.HaversineKm(rider, bus), route.DistanceKm, 1e-9)
			assert.Equal(t, []bool{true}, obs.fallbacks)
		})
	}
}

func TestResolveUnreachableProviderFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := newTestResolver(url, "key", time.Second)
	route := r.Resolve(context.Background(), rider, bus, "")
	assert.True(t, route.IsFallback)
}

func TestFallbackSamePoint(t *testing.T) {
	r := newTestResolver("http://unused", "", time.Second)
	route := r.Fallback(bus, bus)
	assert.Zero(t, route.DistanceKm)
	assert.Zero(t, route.EtaMinutes)
}
