// Package geo computes great-circle distances on a spherical-earth
// approximation and filters discovery candidates by radius. Everything here
// is pure and synchronous.
package geo

import (
	"math"
	"sort"

	"github.com/ivankudzin/matchlink/internal/domain"
)

const earthRadiusKM = 6371.0

// DistanceKM returns the haversine distance between two coordinates in
// kilometers. Callers are expected to validate coordinates first; NaN in
// means NaN out.
func DistanceKM(a, b domain.Coordinate) float64 {
	toRad := func(v float64) float64 { return v * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// FilterByRadius drops candidates without a valid coordinate, annotates the
// rest with DistanceKM relative to origin, keeps those within maxKM and
// returns them sorted ascending by distance. Ties keep input order.
// Candidates with a missing coordinate are excluded, never treated as
// distance zero.
func FilterByRadius(candidates []domain.Candidate, origin domain.Coordinate, maxKM float64) []domain.Candidate {
	if !origin.Valid() || maxKM < 0 {
		return nil
	}

	filtered := make([]domain.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Coordinate == nil || !candidate.Coordinate.Valid() {
			continue
		}
		distance := DistanceKM(origin, *candidate.Coordinate)
		if distance > maxKM {
			continue
		}
		candidate.DistanceKM = distance
		filtered = append(filtered, candidate)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DistanceKM < filtered[j].DistanceKM
	})

	return filtered
}
