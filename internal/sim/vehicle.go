package sim

import (
	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/transit"
)

// progressEpsilon absorbs float drift when Step does not sum exactly to 1.
const progressEpsilon = 1e-9

// Params are the fixed constants of the simulation.
type Params struct {
	DwellTicks   int        // ticks a vehicle waits at each stop
	Step         float64    // progress added per moving tick
	Metric       geo.Metric // segment length measure
	Scale        float64    // minutes per distance unit of Metric
	DwellPenalty float64    // minutes added per intermediate stop
}

func DefaultParams() Params {
	return Params{
		DwellTicks:   20,
		Step:         0.01,
		Metric:       geo.Haversine,
		Scale:        0.003,
		DwellPenalty: 2,
	}
}

// Place puts a vehicle at stop start of its route, dwelling there.
func Place(spec transit.VehicleSpec, stops []transit.Stop) transit.VehicleState {
	n := len(stops)
	v := transit.VehicleState{
		ID:             spec.ID,
		RouteID:        spec.RouteID,
		RouteIndex:     spec.StartIndex % n,
		NextRouteIndex: (spec.StartIndex + 1) % n,
	}
	reposition(&v, stops)
	return v
}

// Advance moves v by one tick along its route. The route must have at least two stops.
func Advance(v *transit.VehicleState, stops []transit.Stop, p Params) {
	if v.DwellElapsed < p.DwellTicks {
		v.DwellElapsed++
		return
	}
	v.Progress += p.Step
	if v.Progress >= 1-progressEpsilon {
		v.RouteIndex = v.NextRouteIndex
		v.NextRouteIndex = (v.NextRouteIndex + 1) % len(stops)
		v.Progress = 0
		v.DwellElapsed = 0
	}
	reposition(v, stops)
}

// Dwelling reports whether v is still paused at its current stop.
// A vehicle with Progress 0 and a finished dwell is about to depart but still at the stop.
func Dwelling(v transit.VehicleState, p Params) bool {
	return AtStop(v) && v.DwellElapsed < p.DwellTicks
}

// AtStop reports whether v is standing at its current stop, dwelling or about to depart.
func AtStop(v transit.VehicleState) bool {
	return v.Progress == 0
}

func reposition(v *transit.VehicleState, stops []transit.Stop) {
	from := stops[v.RouteIndex]
	to := stops[v.NextRouteIndex]
	v.Position = geo.Interpolate(from.Point(), to.Point(), v.Progress)
	v.Bearing = geo.BearingDeg(from.Point(), to.Point())
	v.CurrentStop = from.Name
	v.NextStop = to.Name
}
