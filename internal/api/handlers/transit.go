package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/locate"
	"smartbus-simulator/internal/metrics"
	"smartbus-simulator/internal/sim"
)

const (
	defaultNearestLimit = 1
	maxNearestLimit     = 20
)

type TransitHandler struct {
	sim     Simulation
	metrics *metrics.Collector
}

func NewTransitHandler(s Simulation, m *metrics.Collector) *TransitHandler {
	return &TransitHandler{sim: s, metrics: m}
}

func (h *TransitHandler) Stops(w http.ResponseWriter, r *http.Request) {
	stops := h.sim.Network().Stops
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stops":   stops,
		"count":   len(stops),
	})
}

func (h *TransitHandler) Routes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"routes":  h.sim.Network().Routes,
	})
}

func (h *TransitHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"vehicles": h.sim.Vehicles(),
	})
}

// Location returns the startup geolocation result and the nearest stop.
func (h *TransitHandler) Location(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"location": h.sim.User(),
	})
}

// Nearest finds the closest stops to ?lat=&lng=, or to the user's location when omitted.
func (h *TransitHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	p := h.sim.User().Point
	q := r.URL.Query()
	latS, lngS := q.Get("lat"), q.Get("lng")
	if latS != "" || lngS != "" {
		lat, err1 := strconv.ParseFloat(latS, 64)
		lng, err2 := strconv.ParseFloat(lngS, 64)
		p = geo.Point{Lat: lat, Lng: lng}
		if err1 != nil || err2 != nil || !p.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid coordinates", "lat and lng must both be valid decimal degrees")
			return
		}
	}
	limit := parseIntParam(r, "limit", defaultNearestLimit, 1, maxNearestLimit)
	stops := locate.Closest(h.sim.Network().Stops, p, h.sim.Params().Metric, limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"from":    p,
		"metric":  h.sim.Params().Metric,
		"stops":   stops,
	})
}

// Board returns the smoothed ETA board for the user's nearest stop.
func (h *TransitHandler) Board(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"board":   h.sim.Board(),
	})
}

// StopETA computes fresh, unsmoothed ETAs for any stop.
func (h *TransitHandler) StopETA(w http.ResponseWriter, r *http.Request) {
	stop := mux.Vars(r)["stop"]
	snap, err := h.sim.SnapshotFor(stop)
	if err != nil {
		if errors.Is(err, sim.ErrInvalidTarget) {
			if h.metrics != nil {
				h.metrics.InvalidTargets.Inc()
			}
			writeError(w, http.StatusNotFound, "Invalid target", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ETA failed", err.Error())
		return
	}
	snap.Exact = nil
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"snapshot": snap,
	})
}
