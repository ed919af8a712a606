package geo

import (
	"fmt"
	"math"
	"strings"
)

const earthRadiusMeters = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Valid reports whether p is a real coordinate: finite, latitude in [-90,90], longitude in [-180,180].
func (p Point) Valid() bool {
	return Finite(p.Lat) && Finite(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Metric selects how distances between two points are measured.
// Haversine returns meters, Euclidean returns planar degrees.
type Metric string

const (
	Haversine Metric = "haversine"
	Euclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", Haversine:
		return Haversine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

func (m Metric) Distance(a, b Point) float64 {
	if m == Euclidean {
		return EuclideanDegrees(a, b)
	}
	return HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// HaversineMeters is the great-circle distance in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func EuclideanDegrees(a, b Point) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

// Interpolate returns the point at frac along the straight line a->b.
// frac is clamped to [0,1].
func Interpolate(a, b Point, frac float64) Point {
	if frac <= 0 {
		return a
	}
	if frac > 1 {
		frac = 1
	}
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*frac,
		Lng: a.Lng + (b.Lng-a.Lng)*frac,
	}
}

// BearingDeg is the initial compass bearing from a to b in [0,360).
func BearingDeg(a, b Point) float64 {
	y := math.Sin((b.Lng-a.Lng)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lng-a.Lng)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
