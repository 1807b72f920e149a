// Package geo provides the planar-approximation geographic helpers used by
// clustering and proximity detection.
package geo

import "math"

// earthRadiusKM is the mean Earth radius used by the Haversine formula.
const earthRadiusKM = 6371.0

// degreesPerKM approximates the latitude/longitude delta covered by one
// kilometre (~0.018 degrees per 2 km). Used for bounding-box pre-filters
// only; exact membership is always decided with DistanceKM.
const degreesPerKM = 0.009

// DistanceKM returns the great-circle distance in kilometres between two
// coordinate pairs. Pure and symmetric: DistanceKM(a, b) == DistanceKM(b, a).
func DistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// BoundingBox is a latitude/longitude rectangle around a center point.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoxAround returns the bounding box covering radiusKM around the given
// center, using the simple degree-delta approximation.
func BoxAround(lat, lng, radiusKM float64) BoundingBox {
	delta := radiusKM * degreesPerKM
	return BoundingBox{
		MinLat: lat - delta,
		MaxLat: lat + delta,
		MinLng: lng - delta,
		MaxLng: lng + delta,
	}
}
