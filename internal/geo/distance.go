package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

const (
	// EarthRadiusMeters is the mean Earth radius used for degree conversions
	EarthRadiusMeters = 6371000.0

	// MetersPerDegreeEquator is one degree of longitude at the equator on the
	// sphere used by Distance
	MetersPerDegreeEquator = orb.EarthRadius * math.Pi / 180
)

// DegreesToMeters converts an angular delta in degrees to meters along a
// great circle of EarthRadiusMeters
func DegreesToMeters(deg float64) float64 {
	return deg * math.Pi / 180 * EarthRadiusMeters
}

// Distance returns the great-circle distance in meters between two
// latitude/longitude points
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	return orbgeo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

// AxisDisplacement returns the north-south and east-west distances in meters
// of point (lat, lon) from the origin (lat0, lon0).
//
// The latitude axis is measured along the point's meridian, from (lat0, lon)
// to (lat, lon). The longitude axis is measured along the point's parallel,
// from (lat, lon0) to (lat, lon).
func AxisDisplacement(lat0, lon0, lat, lon float64) (latMeters, lonMeters float64) {
	return Distance(lat0, lon, lat, lon), Distance(lat, lon0, lat, lon)
}
