package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	sim       Simulation
	startTime time.Time
}

func NewHealthHandler(s Simulation) *HealthHandler {
	return &HealthHandler{sim: s, startTime: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).String(),
		"ticks":     h.sim.Ticks(),
		"vehicles":  len(h.sim.Vehicles()),
	})
}
