package search

import "math"

const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// points. The same formula, expressed in SQL, drives radius filtering in
// the listing store; this one fills the per-item distance on result pages.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dLng/2), 2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
