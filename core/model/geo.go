package model

import "math"

const earthRadiusMiles = 3958.8

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location describes where a job takes place or where a provider is based.
// Point is nil when coordinates are unknown.
type Location struct {
	Point *Point `json:"point,omitempty"`
	Zip   string `json:"zip,omitempty"`
}

// HasCoordinates reports whether the location carries a usable point.
func (l Location) HasCoordinates() bool { return l.Point != nil }

// DistanceMiles returns the great-circle distance between a and b using the
// haversine formula.
func DistanceMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}
