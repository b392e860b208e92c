package geoutil

import (
	"math"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters is the spherical earth radius used for distance
// calculations.
const earthRadiusMeters = 6371000.0

// cellLevel 17 gives cells of roughly 100m across, a useful bucket size for
// grouping complaints and proofs by neighborhood.
const cellLevel = 17

// HaversineMeters returns the great-circle distance in meters between two
// WGS84 coordinates using the half-angle haversine formula.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dPhi := (lat2 - lat1) * math.Pi / 180.0
	dLambda := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// CellToken returns the S2 cell token for a coordinate at the level used for
// spatial bucketing. Stored in record payloads so operational queries can
// filter by neighborhood without scanning coordinates.
func CellToken(lat, lon float64) string {
	ll := s2.LatLngFromDegrees(lat, lon)
	return s2.CellIDFromLatLng(ll).Parent(cellLevel).ToToken()
}
