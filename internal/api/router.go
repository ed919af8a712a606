package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"smartbus-simulator/internal/api/handlers"
	"smartbus-simulator/internal/metrics"
)

type Options struct {
	// RefreshTickets makes ticket lookups carry current ETAs.
	RefreshTickets bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware
func NewRouter(
	sim handlers.Simulation,
	office handlers.TicketOffice,
	hub *Hub,
	m *metrics.Collector,
	opts Options,
) http.Handler {
	r := mux.NewRouter()

	healthHandler := handlers.NewHealthHandler(sim)
	transitHandler := handlers.NewTransitHandler(sim, m)
	ticketHandler := handlers.NewTicketHandler(sim, office, opts.RefreshTickets)
	feedHandler := handlers.NewFeedHandler(sim)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	r.HandleFunc("/api/stops", transitHandler.Stops).Methods(http.MethodGet)
	r.HandleFunc("/api/routes", transitHandler.Routes).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles", transitHandler.Vehicles).Methods(http.MethodGet)
	r.HandleFunc("/api/location", transitHandler.Location).Methods(http.MethodGet)
	r.HandleFunc("/api/nearest", transitHandler.Nearest).Methods(http.MethodGet)
	r.HandleFunc("/api/eta", transitHandler.Board).Methods(http.MethodGet)
	r.HandleFunc("/api/eta/{stop}", transitHandler.StopETA).Methods(http.MethodGet)

	r.HandleFunc("/api/fare", ticketHandler.Fare).Methods(http.MethodGet)
	r.HandleFunc("/api/tickets", ticketHandler.Purchase).Methods(http.MethodPost)
	r.HandleFunc("/api/tickets/{id}", ticketHandler.Get).Methods(http.MethodGet)

	r.HandleFunc("/gtfs-rt/vehicle-positions", feedHandler.VehiclePositions).Methods(http.MethodGet)
	if hub != nil {
		r.Handle("/ws", hub)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	return Chain(r,
		Recovery,
		Logging(m),
		c.Handler,
	)
}
