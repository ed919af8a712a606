package sim

import (
	"errors"
	"fmt"
	"math"

	"smartbus-simulator/internal/transit"
)

// ErrInvalidTarget is returned when the target stop is not served by the vehicle's route
// (or does not exist at all).
var ErrInvalidTarget = errors.New("invalid target")

// Estimate projects v's arrival at target. The remaining part of the current segment is
// added first, then whole segments are walked forward, each intermediate stop costing one
// dwell penalty, until target is the upcoming stop. The walk is bounded by the route length.
func Estimate(v transit.VehicleState, stops []transit.Stop, target string, p Params) (transit.Estimate, error) {
	n := len(stops)
	est := transit.Estimate{VehicleID: v.ID, RouteID: v.RouteID, TargetStop: target}
	if n < 2 {
		return est, fmt.Errorf("%w: route %q of vehicle %s has %d stops", ErrInvalidTarget, v.RouteID, v.ID, n)
	}

	// Already standing at the target.
	if AtStop(v) && stops[v.RouteIndex].Name == target {
		return est, nil
	}

	penalty := 0.0
	if v.DwellElapsed < p.DwellTicks {
		penalty += float64(p.DwellTicks-v.DwellElapsed) / float64(p.DwellTicks) * p.DwellPenalty
	}
	dist := (1 - v.Progress) * segment(stops, v.RouteIndex, v.NextRouteIndex, p)

	i := v.NextRouteIndex
	found := false
	for steps := 0; steps < n; steps++ {
		if stops[i].Name == target {
			found = true
			break
		}
		next := (i + 1) % n
		penalty += p.DwellPenalty
		dist += segment(stops, i, next, p)
		est.StopsAway++
		i = next
	}
	if !found {
		return est, fmt.Errorf("%w: stop %q is not on route %q (vehicle %s)", ErrInvalidTarget, target, v.RouteID, v.ID)
	}

	est.StopsAway++
	est.Distance = dist
	est.Exact = dist*p.Scale + penalty
	est.Minutes = int(math.Ceil(est.Exact))
	return est, nil
}

func segment(stops []transit.Stop, from, to int, p Params) float64 {
	return p.Metric.Distance(stops[from].Point(), stops[to].Point())
}
