package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/feed"
)

type FeedHandler struct {
	sim Simulation
}

func NewFeedHandler(s Simulation) *FeedHandler {
	return &FeedHandler{sim: s}
}

// VehiclePositions serves the GTFS-realtime feed; ?format=json renders it readable.
func (h *FeedHandler) VehiclePositions(w http.ResponseWriter, r *http.Request) {
	msg := feed.VehiclePositions(time.Now(), h.sim.Vehicles())

	var (
		body []byte
		err  error
	)
	if r.URL.Query().Get("format") == "json" {
		body, err = feed.MarshalJSON(msg)
		w.Header().Set("Content-Type", "application/json")
	} else {
		body, err = feed.Marshal(msg)
		w.Header().Set("Content-Type", "application/x-protobuf")
	}
	if err != nil {
		log.WithError(err).Error("encoding vehicle positions feed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
