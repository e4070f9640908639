// Package geo computes the straight-line distances the ETA model is
// trained on.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"

	"eta-service/internal/common"
)

// ErrInvalidCoordinate is returned for latitudes outside [-90, 90],
// longitudes outside [-180, 180] or non-finite values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that p is a usable position.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Lat)
	}
	if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in
// kilometers. This is the distance the model expects, not road distance.
func Haversine(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * common.EarthRadiusKilometer
}

// RoadEstimate approximates driving distance from a straight-line one.
func RoadEstimate(haversineKm float64) float64 {
	return haversineKm * common.RoadDistanceFactor
}
