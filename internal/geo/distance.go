package geo

import "math"

// WGS84 parameters.
const (
	earthRadiusKm = 6371.0088
	equatorialKm  = 6378.137
	flattening    = 1.0 / 298.257223563
)

// DistanceKm returns the ellipsoidal surface distance between two points
// using Lambert's formula: great-circle angle on reduced latitudes plus a
// first-order flattening correction. Accurate to ~10 m over city distances,
// which is well inside one cell edge.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	b1 := reducedLat(lat1 * math.Pi / 180)
	b2 := reducedLat(lat2 * math.Pi / 180)
	sigma := centralAngle(b1, lng1*math.Pi/180, b2, lng2*math.Pi/180)
	if sigma == 0 {
		return 0
	}

	p := (b1 + b2) / 2
	q := (b2 - b1) / 2
	x := (sigma - math.Sin(sigma)) * sq(math.Sin(p)) * sq(math.Cos(q)) / sq(math.Cos(sigma/2))
	y := (sigma + math.Sin(sigma)) * sq(math.Cos(p)) * sq(math.Sin(q)) / sq(math.Sin(sigma/2))
	return equatorialKm * (sigma - flattening/2*(x+y))
}

// Haversine is the spherical great-circle distance in km. Kept as the
// baseline for tests; DistanceKm refines it for the oblate earth.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	return earthRadiusKm * centralAngle(toRad(lat1), toRad(lng1), toRad(lat2), toRad(lng2))
}

func centralAngle(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat2 - lat1
	dLng := lng2 - lng1
	a := sq(math.Sin(dLat/2)) + math.Cos(lat1)*math.Cos(lat2)*sq(math.Sin(dLng/2))
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func reducedLat(lat float64) float64 {
	return math.Atan((1 - flattening) * math.Tan(lat))
}

func sq(x float64) float64 { return x * x }
