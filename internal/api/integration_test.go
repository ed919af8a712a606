package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"smartbus-simulator/internal/api"
	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/sim"
	"smartbus-simulator/internal/ticket"
	"smartbus-simulator/internal/transit"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func testNetwork() *transit.Network {
	return &transit.Network{
		Stops: []transit.Stop{
			{Name: "A", Lat: 0, Lng: 0},
			{Name: "B", Lat: 0, Lng: 1},
			{Name: "C", Lat: 1, Lng: 1},
			{Name: "D", Lat: 5, Lng: 5},
		},
		Routes: []transit.Route{
			{ID: "loop", Stops: []string{"A", "B", "C"}},
			{ID: "shuttle", Stops: []string{"C", "D"}},
		},
		Fares: transit.FareTable{"A": {"B": 15}},
		Vehicles: []transit.VehicleSpec{
			{ID: "bus-1", RouteID: "loop", StartIndex: 0},
			{ID: "bus-2", RouteID: "loop", StartIndex: 1},
			{ID: "bus-3", RouteID: "shuttle", StartIndex: 0},
		},
	}
}

type testServer struct {
	*httptest.Server
	engine *sim.Engine
	hub    *api.Hub
}

func newTestServer(t *testing.T, opts api.Options) *testServer {
	t.Helper()

	n := testNetwork()
	params := sim.Params{DwellTicks: 20, Step: 0.1, Metric: geo.Euclidean, Scale: 10, DwellPenalty: 2}
	engine, err := sim.NewEngine(n, params, geo.Point{Lat: 0.1, Lng: 0.9}, false, 1)
	require.NoError(t, err)

	office := ticket.NewOffice(n.Fares, true, ticket.NewRegistry())
	hub := api.NewHub(func() api.Frame {
		return api.Frame{Type: "hello", Timestamp: time.Now(), Stops: n.Stops, Routes: n.Routes}
	}, nil)

	srv := httptest.NewServer(api.NewRouter(engine, office, hub, nil, opts))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, engine: engine, hub: hub}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	var body struct {
		Status   string `json:"status"`
		Vehicles int    `json:"vehicles"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, 3, body.Vehicles)
}

func TestStopsAndRoutes(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	var stops struct {
		Stops []transit.Stop `json:"stops"`
		Count int            `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/stops", &stops))
	assert.Equal(t, 4, stops.Count)
	assert.Equal(t, "A", stops.Stops[0].Name)

	var routes struct {
		Routes []transit.Route `json:"routes"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/routes", &routes))
	require.Len(t, routes.Routes, 2)
	assert.Equal(t, []string{"A", "B", "C"}, routes.Routes[0].Stops)
}

func TestVehiclesAndLocation(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	var vehicles struct {
		Vehicles []transit.VehicleState `json:"vehicles"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/vehicles", &vehicles))
	require.Len(t, vehicles.Vehicles, 3)
	assert.Equal(t, "bus-1", vehicles.Vehicles[0].ID)

	var loc struct {
		Location struct {
			Point    geo.Point `json:"point"`
			Fallback bool      `json:"fallback"`
			Nearest  struct {
				Name string `json:"name"`
			} `json:"nearestStop"`
		} `json:"location"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/location", &loc))
	assert.Equal(t, "B", loc.Location.Nearest.Name)
	assert.False(t, loc.Location.Fallback)
	assert.Equal(t, geo.Point{Lat: 0.1, Lng: 0.9}, loc.Location.Point)
}

func TestNearest(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	type nearestResponse struct {
		Stops []struct {
			Name     string  `json:"name"`
			Distance float64 `json:"distance"`
		} `json:"stops"`
	}

	t.Run("defaults to user location", func(t *testing.T) {
		var body nearestResponse
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/nearest", &body))
		require.Len(t, body.Stops, 1)
		assert.Equal(t, "B", body.Stops[0].Name)
	})

	t.Run("explicit point with limit", func(t *testing.T) {
		var body nearestResponse
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/nearest?lat=0&lng=0&limit=3", &body))
		require.Len(t, body.Stops, 3)
		assert.Equal(t, "A", body.Stops[0].Name)
		assert.Zero(t, body.Stops[0].Distance)
		assert.Equal(t, "B", body.Stops[1].Name)
		assert.Equal(t, "C", body.Stops[2].Name)
	})

	t.Run("invalid coordinates", func(t *testing.T) {
		var body errorResponse
		require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nearest?lat=abc&lng=1", &body))
		assert.False(t, body.Success)

		require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nearest?lat=1", nil))
		require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nearest?lat=91&lng=0", nil))
		require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nearest?lat=NaN&lng=NaN", nil))
		require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/nearest?lat=0&lng=Inf", nil))
	})
}

func TestStopETA(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	var body struct {
		Snapshot transit.Snapshot `json:"snapshot"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eta/B", &body))
	assert.Equal(t, "B", body.Snapshot.Target)
	assert.Equal(t, 0, body.Snapshot.ETAs["bus-2"])
	assert.Contains(t, body.Snapshot.ETAs, "bus-1")
	assert.NotContains(t, body.Snapshot.ETAs, "bus-3")
	assert.Nil(t, body.Snapshot.Exact)

	var errBody errorResponse
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/eta/Nowhere", &errBody))
	assert.Equal(t, "Invalid target", errBody.Error)
}

func TestBoard(t *testing.T) {
	ts := newTestServer(t, api.Options{})
	ts.engine.RecomputeETA()

	var body struct {
		Board transit.Snapshot `json:"board"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/eta", &body))
	assert.Equal(t, "B", body.Board.Target)
	assert.Equal(t, 0, body.Board.ETAs["bus-2"])
}

func TestFare(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	type fareResponse struct {
		Fare  float64 `json:"fare"`
		Found bool    `json:"found"`
		From  string  `json:"from"`
	}

	var body fareResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/fare?from=A&to=B", &body))
	assert.Equal(t, 15.0, body.Fare)
	assert.True(t, body.Found)

	body = fareResponse{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/fare?to=A", &body))
	assert.Equal(t, "B", body.From)
	assert.Equal(t, 15.0, body.Fare, "reverse entry used")

	body = fareResponse{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/fare?from=C&to=D", &body))
	assert.Zero(t, body.Fare)
	assert.False(t, body.Found)

	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/fare?from=A", nil))
}

func TestTicketLifecycle(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	var created struct {
		Success bool           `json:"success"`
		Ticket  transit.Ticket `json:"ticket"`
	}
	require.Equal(t, http.StatusCreated, postJSON(t, ts.URL+"/api/tickets", `{"destination":"A"}`, &created))
	require.True(t, created.Success)
	tk := created.Ticket
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, "B", tk.From)
	assert.Equal(t, "A", tk.To)
	assert.Equal(t, 15.0, tk.Fare)
	assert.Equal(t, 0, tk.ETAs["bus-2"])
	assert.NotContains(t, tk.ETAs, "bus-3")

	type getResponse struct {
		Ticket    transit.Ticket `json:"ticket"`
		Refreshed bool           `json:"refreshed"`
	}

	var got getResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tickets/"+tk.ID, &got))
	assert.Equal(t, tk.ID, got.Ticket.ID)
	assert.Equal(t, tk.ETAs, got.Ticket.ETAs)
	assert.False(t, got.Refreshed)

	// Move bus-2 off the stop; the stored ticket keeps its snapshot.
	for i := 0; i < 25; i++ {
		ts.engine.Tick()
	}

	got = getResponse{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tickets/"+tk.ID, &got))
	assert.Equal(t, 0, got.Ticket.ETAs["bus-2"])

	got = getResponse{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tickets/"+tk.ID+"?refresh=true", &got))
	assert.True(t, got.Refreshed)
	assert.Equal(t, tk.ID, got.Ticket.ID)
	assert.Greater(t, got.Ticket.ETAs["bus-2"], 0)

	var errBody errorResponse
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/tickets/does-not-exist", &errBody))
	assert.Equal(t, "Ticket not found", errBody.Error)
}

func TestTicketRefreshOption(t *testing.T) {
	ts := newTestServer(t, api.Options{RefreshTickets: true})

	var created struct {
		Ticket transit.Ticket `json:"ticket"`
	}
	require.Equal(t, http.StatusCreated, postJSON(t, ts.URL+"/api/tickets", `{"from":"A","destination":"B"}`, &created))
	assert.Equal(t, "A", created.Ticket.From)

	var got struct {
		Refreshed bool `json:"refreshed"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tickets/"+created.Ticket.ID, &got))
	assert.True(t, got.Refreshed)
}

func TestTicketPurchaseValidation(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"destination":`},
		{"missing destination", `{}`},
		{"unknown destination", `{"destination":"Nowhere"}`},
		{"unknown origin", `{"from":"Nowhere","destination":"A"}`},
		{"same stop", `{"destination":"B"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			require.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/tickets", tt.body, &body))
			assert.False(t, body.Success)
		})
	}
}

func TestVehiclePositionsFeed(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	resp, err := http.Get(ts.URL + "/gtfs-rt/vehicle-positions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var msg gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(raw, &msg))
	require.Len(t, msg.GetEntity(), 3)
	assert.Equal(t, "bus-1", msg.GetEntity()[0].GetVehicle().GetVehicle().GetId())

	jsonResp, err := http.Get(ts.URL + "/gtfs-rt/vehicle-positions?format=json")
	require.NoError(t, err)
	defer jsonResp.Body.Close()
	assert.Equal(t, "application/json", jsonResp.Header.Get("Content-Type"))
	body, err := io.ReadAll(jsonResp.Body)
	require.NoError(t, err)
	assert.True(t, json.Valid(body))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/stops", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	resp, err := http.Post(ts.URL+"/api/stops", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/tickets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketFeed(t *testing.T) {
	ts := newTestServer(t, api.Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello api.Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Len(t, hello.Stops, 4)

	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.Broadcast(api.PositionsFrame(time.Now(), ts.engine.Vehicles()))
	var positions api.Frame
	require.NoError(t, conn.ReadJSON(&positions))
	assert.Equal(t, "positions", positions.Type)
	assert.Len(t, positions.Vehicles, 3)

	board, _ := ts.engine.RecomputeETA()
	ts.hub.Broadcast(api.ETAFrame(board))
	var eta api.Frame
	require.NoError(t, conn.ReadJSON(&eta))
	assert.Equal(t, "eta", eta.Type)
	require.NotNil(t, eta.Board)
	assert.Equal(t, "B", eta.Board.Target)

	conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
