package geo

import "math"

// EarthRadiusMeters is Earth's mean radius for the Haversine calculation.
const EarthRadiusMeters = 6371008.8

// DistanceMeters calculates the great-circle distance between two points
// on Earth in meters using the Haversine formula.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Valid reports whether the pair is a plausible WGS84 coordinate.
func Valid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// IsWithinMeters checks whether two coordinates are within radiusM of each
// other.
func IsWithinMeters(lat1, lng1, lat2, lng2, radiusM float64) bool {
	return DistanceMeters(lat1, lng1, lat2, lng2) <= radiusM
}
