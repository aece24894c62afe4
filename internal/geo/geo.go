// Package geo provides the geodesic primitives used by clustering and
// movement analysis: haversine great-circle distance and a planar
// bounding-box area approximation suitable for the small extents (tens to
// hundreds of meters) this system works with.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000

// metersPerDegreeLat is the planar approximation of one degree of latitude.
const metersPerDegreeLat = 111320

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance in meters between two WGS84
// points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// BoundingBoxArea returns the area in square meters of the axis-aligned
// bounding box over the given points, projected to a local planar
// approximation at the points' mean latitude. Returns 0 for fewer than two
// points. The result is monotonic with spatial spread, which is all movement
// classification needs.
func BoundingBoxArea(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	sumLat := 0.0
	for _, p := range points {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
		sumLat += p.Lat
	}

	avgLat := sumLat / float64(len(points))
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(avgLat*math.Pi/180)

	return (maxLat - minLat) * metersPerDegreeLat * (maxLon - minLon) * metersPerDegreeLon
}
