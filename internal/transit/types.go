package transit

import (
	"time"

	"smartbus-simulator/internal/geo"
)

type Stop struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lng: s.Lng} }

// Route is a cyclic sequence of stop names; the last stop connects back to the first.
type Route struct {
	ID    string   `json:"id"`
	Stops []string `json:"stops"`
}

// VehicleSpec places a vehicle on a route at startup.
type VehicleSpec struct {
	ID         string `json:"id"`
	RouteID    string `json:"routeId"`
	StartIndex int    `json:"startIndex"`
}

// Network is the static data the simulation runs on. It is loaded once and never mutated.
type Network struct {
	Stops    []Stop        `json:"stops"`
	Routes   []Route       `json:"routes"`
	Fares    FareTable     `json:"fares"`
	Vehicles []VehicleSpec `json:"vehicles"`
}

// StopByName returns the stop and its table index.
func (n *Network) StopByName(name string) (Stop, int, bool) {
	for i, s := range n.Stops {
		if s.Name == name {
			return s, i, true
		}
	}
	return Stop{}, -1, false
}

func (n *Network) Route(id string) (Route, bool) {
	for _, r := range n.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// RouteStops resolves a route's stop names against the stop table.
// Names missing from the table are skipped; validated networks have none.
func (n *Network) RouteStops(r Route) []Stop {
	out := make([]Stop, 0, len(r.Stops))
	for _, name := range r.Stops {
		if s, _, ok := n.StopByName(name); ok {
			out = append(out, s)
		}
	}
	return out
}

// VehicleState is the per-vehicle simulation state. Progress is the fraction of the
// segment RouteIndex -> NextRouteIndex already travelled and stays in [0,1).
type VehicleState struct {
	ID             string    `json:"id"`
	RouteID        string    `json:"routeId"`
	RouteIndex     int       `json:"routeIndex"`
	NextRouteIndex int       `json:"nextRouteIndex"`
	Progress       float64   `json:"progress"`
	DwellElapsed   int       `json:"dwellElapsed"`
	Position       geo.Point `json:"position"`
	Bearing        float64   `json:"bearing"`
	CurrentStop    string    `json:"currentStop"`
	NextStop       string    `json:"nextStop"`
}

// Estimate is a single vehicle's projected arrival at a target stop.
type Estimate struct {
	VehicleID  string  `json:"vehicleId"`
	RouteID    string  `json:"routeId"`
	TargetStop string  `json:"targetStop"`
	Minutes    int     `json:"minutes"`
	Exact      float64 `json:"exactMinutes"`
	Distance   float64 `json:"distance"`
	StopsAway  int     `json:"stopsAway"`
}

// Snapshot holds the per-vehicle ETA minutes for one target stop, computed in one pass.
// Exact carries the unrounded minutes when the snapshot comes straight from the estimator.
type Snapshot struct {
	Target     string             `json:"target"`
	ComputedAt time.Time          `json:"computedAt"`
	ETAs       map[string]int     `json:"etas"`
	Exact      map[string]float64 `json:"exactEtas,omitempty"`
}

// Ticket is issued once per purchase and never mutated afterwards.
type Ticket struct {
	ID       string         `json:"id"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Fare     float64        `json:"fare"`
	ETAs     map[string]int `json:"etaSnapshot"`
	IssuedAt time.Time      `json:"issuedAt"`
}
