// Package geo holds the straight-line distance and ETA estimates used when
// no road route is available.
package geo

import "math"

const (
	EarthRadiusKm    = 6371.0
	DefaultSpeedKmh  = 30.0
	degreesToRadians = math.Pi / 180
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * degreesToRadians
	dLon := (b.Lng - a.Lng) * degreesToRadians

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degreesToRadians)*math.Cos(b.Lat*degreesToRadians)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h just past 1 for antipodal points.
	h = math.Min(1, h)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// TravelMinutes is the unrounded travel time at speedKmh. A non-positive
// speed falls back to DefaultSpeedKmh.
func TravelMinutes(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return distanceKm / speedKmh * 60
}

// EstimateEtaMinutes rounds TravelMinutes to the nearest minute. Zero
// distance yields zero ("arriving now").
func EstimateEtaMinutes(distanceKm, speedKmh float64) int {
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Round(TravelMinutes(distanceKm, speedKmh)))
}
