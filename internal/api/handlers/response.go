// Package handlers contains HTTP request handlers
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"smartbus-simulator/internal/sim"
	"smartbus-simulator/internal/transit"

	log "github.com/sirupsen/logrus"
)

// Simulation is the read side of the running simulation.
type Simulation interface {
	Network() *transit.Network
	Params() sim.Params
	Vehicles() []transit.VehicleState
	User() sim.UserLocation
	Board() transit.Snapshot
	SnapshotFor(stop string) (transit.Snapshot, error)
	Ticks() uint64
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, errMsg, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   errMsg,
		"message": message,
	})
}

// parseIntParam reads an integer query parameter, clamped to [min, max].
func parseIntParam(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
