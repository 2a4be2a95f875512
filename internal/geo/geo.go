package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for ground-distance
// calculations (kilometres).
const EarthRadiusKm = 6371.0

// Point is a geodetic position: latitude/longitude in degrees, altitude in
// kilometres above the ellipsoid.
type Point struct {
	LatDeg float64 `json:"latitude"`
	LonDeg float64 `json:"longitude"`
	AltKm  float64 `json:"altitude_km"`
}

// Valid reports whether the point's coordinates are finite and in range.
func (p Point) Valid() bool {
	if math.IsNaN(p.LatDeg) || math.IsInf(p.LatDeg, 0) {
		return false
	}
	if math.IsNaN(p.LonDeg) || math.IsInf(p.LonDeg, 0) {
		return false
	}
	return p.LatDeg >= -90 && p.LatDeg <= 90 && p.LonDeg >= -180 && p.LonDeg <= 180
}

// DistanceKm returns the haversine great-circle distance between two points
// in kilometres, ignoring altitude. NaN inputs propagate as NaN; callers
// comparing against a radius must treat NaN as "distance unknown".
func DistanceKm(a, b Point) float64 {
	lat1 := a.LatDeg * math.Pi / 180
	lat2 := b.LatDeg * math.Pi / 180
	dLat := (b.LatDeg - a.LatDeg) * math.Pi / 180
	dLon := (b.LonDeg - a.LonDeg) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(h))

	return c * EarthRadiusKm
}
