// internal/domain/geo/geo.go

package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned for NaN, infinite or out of range coordinates
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// EarthRadiusMeters is the mean Earth radius used by the haversine formula
const EarthRadiusMeters = 6371000.0

// Point represents a geographic point in decimal degrees
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that a point lies on the globe
func Validate(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// Distance returns the great-circle distance between two points in meters.
// Callers are expected to have validated both points.
func Distance(a, b Point) float64 {
	// Convert latitude and longitude from degrees to radians
	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin

	// Rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, h)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports whether point lies inside the circle described by
// center and radiusMeters. The boundary is inclusive.
func WithinRadius(point, center Point, radiusMeters float64) (bool, error) {
	if err := Validate(point); err != nil {
		return false, err
	}
	if err := Validate(center); err != nil {
		return false, err
	}
	if math.IsNaN(radiusMeters) || radiusMeters <= 0 {
		return false, fmt.Errorf("%w: radius %v", ErrInvalidCoordinate, radiusMeters)
	}

	return Distance(point, center) <= radiusMeters, nil
}
