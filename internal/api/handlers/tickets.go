package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"smartbus-simulator/internal/ticket"
	"smartbus-simulator/internal/transit"
)

type TicketOffice interface {
	Issue(from, to string, etas map[string]int) transit.Ticket
	Fare(from, to string) (float64, bool)
	Lookup(id string) (transit.Ticket, error)
}

type TicketHandler struct {
	sim     Simulation
	office  TicketOffice
	refresh bool
}

// NewTicketHandler builds the ticket endpoints. With refresh set, looked-up tickets
// always carry the current ETAs for their origin stop.
func NewTicketHandler(s Simulation, office TicketOffice, refresh bool) *TicketHandler {
	return &TicketHandler{sim: s, office: office, refresh: refresh}
}

type purchaseRequest struct {
	From        string `json:"from"`
	Destination string `json:"destination"`
}

// Purchase issues a ticket from the user's nearest stop (or "from") to "destination".
func (h *TicketHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.From = strings.TrimSpace(req.From)
	req.Destination = strings.TrimSpace(req.Destination)
	if req.From == "" {
		req.From = h.sim.User().Nearest.Name
	}

	network := h.sim.Network()
	if _, _, ok := network.StopByName(req.From); !ok {
		writeError(w, http.StatusBadRequest, "Unknown stop", "origin "+strconv.Quote(req.From)+" is not a stop")
		return
	}
	if _, _, ok := network.StopByName(req.Destination); !ok {
		writeError(w, http.StatusBadRequest, "Unknown stop", "destination "+strconv.Quote(req.Destination)+" is not a stop")
		return
	}
	if req.From == req.Destination {
		writeError(w, http.StatusBadRequest, "Invalid trip", "origin and destination are the same stop")
		return
	}

	snap, err := h.sim.SnapshotFor(req.From)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ETA failed", err.Error())
		return
	}
	t := h.office.Issue(req.From, req.Destination, snap.ETAs)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"ticket":  t,
	})
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := h.office.Lookup(id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Ticket not found", "no ticket with id "+strconv.Quote(id))
			return
		}
		writeError(w, http.StatusInternalServerError, "Lookup failed", err.Error())
		return
	}

	refreshed := false
	if h.refresh || r.URL.Query().Get("refresh") == "true" {
		if snap, err := h.sim.SnapshotFor(t.From); err == nil {
			t = ticket.Refresh(t, snap.ETAs)
			refreshed = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"ticket":    t,
		"refreshed": refreshed,
	})
}

func (h *TicketHandler) Fare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = h.sim.User().Nearest.Name
	}
	if to == "" {
		writeError(w, http.StatusBadRequest, "Missing destination", "query parameter 'to' is required")
		return
	}
	fare, found := h.office.Fare(from, to)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"from":    from,
		"to":      to,
		"fare":    fare,
		"found":   found,
	})
}
