package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/locate"
	"smartbus-simulator/internal/transit"
)

// Scheduler is what the host's timers drive.
type Scheduler interface {
	Tick()
	RecomputeETA() (transit.Snapshot, bool)
}

// UserLocation is the one-shot geolocation result and the stop nearest to it.
type UserLocation struct {
	Point    geo.Point           `json:"point"`
	Fallback bool                `json:"fallback"`
	Nearest  locate.StopDistance `json:"nearestStop"`
}

// Engine owns the whole simulation state. Tick and RecomputeETA are the only writers;
// every reader gets a copy taken under the lock, so a tick is atomic to observers.
type Engine struct {
	network *transit.Network
	routes  map[string][]transit.Stop
	params  Params
	now     func() time.Time

	mu       sync.RWMutex
	vehicles []transit.VehicleState
	ticks    uint64
	user     UserLocation
	board    *Board
	last     transit.Snapshot
}

// NewEngine places every vehicle of n on its route and finds the stop nearest to user.
// n must have passed network.Validate.
func NewEngine(n *transit.Network, p Params, user geo.Point, fromFallback bool, smoothing float64) (*Engine, error) {
	if p.DwellTicks < 0 || !geo.Finite(p.Step) || p.Step <= 0 || p.Step >= 1 {
		return nil, fmt.Errorf("invalid simulation params: dwell=%d step=%v", p.DwellTicks, p.Step)
	}
	if !geo.Finite(p.Scale) || p.Scale < 0 || !geo.Finite(p.DwellPenalty) || p.DwellPenalty < 0 {
		return nil, fmt.Errorf("invalid eta params: scale=%v penalty=%v", p.Scale, p.DwellPenalty)
	}
	if !geo.Finite(smoothing) || smoothing < 0 {
		return nil, fmt.Errorf("invalid smoothing threshold %v", smoothing)
	}
	if !user.Valid() {
		return nil, fmt.Errorf("invalid user location %+v", user)
	}
	nearest, ok := locate.Nearest(n.Stops, user, p.Metric)
	if !ok {
		return nil, errors.New("network has no stops")
	}
	e := &Engine{
		network: n,
		routes:  make(map[string][]transit.Stop, len(n.Routes)),
		params:  p,
		now:     time.Now,
		user:    UserLocation{Point: user, Fallback: fromFallback, Nearest: nearest},
		board:   NewBoard(smoothing),
	}
	for _, r := range n.Routes {
		stops := n.RouteStops(r)
		if len(stops) < 2 {
			return nil, fmt.Errorf("route %q has fewer than 2 stops", r.ID)
		}
		e.routes[r.ID] = stops
	}
	for _, spec := range n.Vehicles {
		stops, ok := e.routes[spec.RouteID]
		if !ok {
			return nil, fmt.Errorf("vehicle %s references unknown route %q", spec.ID, spec.RouteID)
		}
		e.vehicles = append(e.vehicles, Place(spec, stops))
	}
	e.last = transit.Snapshot{Target: nearest.Name, ETAs: map[string]int{}}
	return e, nil
}

func (e *Engine) Network() *transit.Network { return e.network }

func (e *Engine) Params() Params { return e.params }

// Tick advances every vehicle by one step.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.vehicles {
		v := &e.vehicles[i]
		Advance(v, e.routes[v.RouteID], e.params)
	}
	e.ticks++
}

// RecomputeETA estimates every vehicle's arrival at the user's nearest stop and applies it
// to the display board. It returns the board as shown and whether it changed.
func (e *Engine) RecomputeETA() (transit.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, _ := e.snapshotLocked(e.user.Nearest.Name)
	e.last = snap
	changed := e.board.Apply(snap)
	return e.board.Snapshot(), changed
}

// SnapshotFor computes fresh ETAs for target from the current vehicle states. Vehicles
// whose route does not serve target are left out; a stop missing from the table is
// ErrInvalidTarget.
func (e *Engine) SnapshotFor(target string) (transit.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked(target)
}

func (e *Engine) snapshotLocked(target string) (transit.Snapshot, error) {
	snap := transit.Snapshot{
		Target:     target,
		ComputedAt: e.now(),
		ETAs:       make(map[string]int),
		Exact:      make(map[string]float64),
	}
	if _, _, ok := e.network.StopByName(target); !ok {
		return snap, fmt.Errorf("%w: unknown stop %q", ErrInvalidTarget, target)
	}
	for _, v := range e.vehicles {
		est, err := Estimate(v, e.routes[v.RouteID], target, e.params)
		if err != nil {
			continue
		}
		snap.ETAs[v.ID] = est.Minutes
		snap.Exact[v.ID] = est.Exact
	}
	return snap, nil
}

// EstimateVehicle projects a single vehicle's arrival at target.
func (e *Engine) EstimateVehicle(vehicleID, target string) (transit.Estimate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, v := range e.vehicles {
		if v.ID == vehicleID {
			return Estimate(v, e.routes[v.RouteID], target, e.params)
		}
	}
	return transit.Estimate{}, fmt.Errorf("unknown vehicle %q", vehicleID)
}

func (e *Engine) Vehicles() []transit.VehicleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]transit.VehicleState, len(e.vehicles))
	copy(out, e.vehicles)
	return out
}

func (e *Engine) Ticks() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticks
}

func (e *Engine) User() UserLocation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.user
}

// Board is the smoothed ETA board for the user's nearest stop.
func (e *Engine) Board() transit.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.board.Snapshot()
}

// LastSnapshot is the raw result of the most recent RecomputeETA.
func (e *Engine) LastSnapshot() transit.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copySnapshot(e.last)
}

func copySnapshot(s transit.Snapshot) transit.Snapshot {
	out := s
	out.ETAs = make(map[string]int, len(s.ETAs))
	for k, v := range s.ETAs {
		out.ETAs[k] = v
	}
	if s.Exact != nil {
		out.Exact = make(map[string]float64, len(s.Exact))
		for k, v := range s.Exact {
			out.Exact[k] = v
		}
	}
	return out
}
