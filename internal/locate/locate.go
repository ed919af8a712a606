// Package locate finds the stop nearest to the user and resolves the user's
// position once at startup.
package locate

import (
	"sort"

	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/transit"
)

// Kathmandu city centre, used when no geolocation is available.
var Kathmandu = geo.Point{Lat: 27.7172, Lng: 85.3240}

type StopDistance struct {
	transit.Stop
	Distance float64 `json:"distance"`
}

// Nearest returns the stop closest to p. Ties go to the earlier stop in the table.
// ok is false only for an empty table.
func Nearest(stops []transit.Stop, p geo.Point, metric geo.Metric) (StopDistance, bool) {
	best := -1
	bestDist := 0.0
	for i, s := range stops {
		d := metric.Distance(p, s.Point())
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return StopDistance{}, false
	}
	return StopDistance{Stop: stops[best], Distance: bestDist}, true
}

// Closest returns up to limit stops ordered by distance from p, keeping table
// order for equal distances. limit <= 0 returns every stop.
func Closest(stops []transit.Stop, p geo.Point, metric geo.Metric, limit int) []StopDistance {
	results := make([]StopDistance, 0, len(stops))
	for _, s := range stops {
		results = append(results, StopDistance{Stop: s, Distance: metric.Distance(p, s.Point())})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
