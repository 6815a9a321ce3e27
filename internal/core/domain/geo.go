package domain

import (
	"fmt"

	"github.com/asierbarrena/oficios/internal/pkg/geospatial"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate rejects out-of-range coordinates. Malformed input is an
// error, never clamped.
func (p GeoPoint) Validate() error {
	if err := geospatial.ValidateCoordinate(p.Lat, p.Lon); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}
	return nil
}

// DistanceKm is the great-circle distance to q in kilometers.
func (p GeoPoint) DistanceKm(q GeoPoint) float64 {
	return geospatial.Haversine(p.Lat, p.Lon, q.Lat, q.Lon)
}

// Contains reports whether p falls inside the zone.
func (z CoverageZone) Contains(p GeoPoint) bool {
	return z.Center.DistanceKm(p) <= z.RadiusKm
}
