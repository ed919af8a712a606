package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/metrics"
	"smartbus-simulator/internal/transit"
)

const writeWait = 5 * time.Second

// Frame is one message on the live feed.
type Frame struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Vehicles  []transit.VehicleState `json:"vehicles,omitempty"`
	Board     *transit.Snapshot      `json:"board,omitempty"`
	Stops     []transit.Stop         `json:"stops,omitempty"`
	Routes    []transit.Route        `json:"routes,omitempty"`
	User      any                    `json:"user,omitempty"`
}

func PositionsFrame(at time.Time, vehicles []transit.VehicleState) Frame {
	return Frame{Type: "positions", Timestamp: at, Vehicles: vehicles}
}

func ETAFrame(board transit.Snapshot) Frame {
	return Frame{Type: "eta", Timestamp: board.ComputedAt, Board: &board}
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub fans frames out to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader
	hello    func() Frame
	metrics  *metrics.Collector

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub builds a hub. hello, when set, produces the first frame each client receives.
func NewHub(hello func() Frame, m *metrics.Collector) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hello:   hello,
		metrics: m,
		clients: make(map[string]*wsClient),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn}

	if h.hello != nil {
		msg, err := json.Marshal(h.hello())
		if err == nil {
			err = c.write(msg)
		}
		if err != nil {
			log.WithError(err).Warn("websocket hello failed")
			conn.Close()
			return
		}
	}

	h.add(c)
	defer h.remove(c)

	// Clients only listen; reading keeps control frames flowing and detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	log.WithField("client", c.id).Debug("websocket client connected")
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.conn.Close()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	log.WithField("client", c.id).Debug("websocket client disconnected")
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends f to all clients, dropping any whose write fails.
func (h *Hub) Broadcast(f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		log.WithError(err).Error("encoding websocket frame")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			log.WithError(err).WithField("client", c.id).Debug("websocket write failed")
			h.remove(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}
