package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/transit"
)

const subjectPrefix = "smartbus"

type NATSPublisher struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc(kind string)
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("smartbus-simulator"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	VehicleID   string    `json:"vehicleId"`
	RouteID     string    `json:"routeId"`
	Timestamp   time.Time `json:"timestamp"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Bearing     float64   `json:"bearing"`
	Progress    float64   `json:"progress"`
	CurrentStop string    `json:"currentStop"`
	NextStop    string    `json:"nextStop"`
}

func NewPositionMessage(at time.Time, v transit.VehicleState) PositionMessage {
	return PositionMessage{
		VehicleID:   v.ID,
		RouteID:     v.RouteID,
		Timestamp:   at,
		Lat:         v.Position.Lat,
		Lng:         v.Position.Lng,
		Bearing:     v.Bearing,
		Progress:    v.Progress,
		CurrentStop: v.CurrentStop,
		NextStop:    v.NextStop,
	}
}

// PositionSubject is smartbus.positions.<route>.<vehicle>.
func PositionSubject(routeID, vehicleID string) string {
	return fmt.Sprintf("%s.positions.%s.%s", subjectPrefix, subjectToken(routeID), subjectToken(vehicleID))
}

// ETASubject is smartbus.eta.<stop>.
func ETASubject(stop string) string {
	return fmt.Sprintf("%s.eta.%s", subjectPrefix, subjectToken(stop))
}

// TicketSubject is smartbus.tickets.<origin stop>.
func TicketSubject(from string) string {
	return fmt.Sprintf("%s.tickets.%s", subjectPrefix, subjectToken(from))
}

// PublishPositions sends one message per vehicle. It keeps going after a failed
// publish and returns the first error.
func (p *NATSPublisher) PublishPositions(at time.Time, vehicles []transit.VehicleState) error {
	var first error
	for _, v := range vehicles {
		if err := p.publish("position", PositionSubject(v.RouteID, v.ID), NewPositionMessage(at, v)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *NATSPublisher) PublishBoard(board transit.Snapshot) error {
	return p.publish("eta", ETASubject(board.Target), board)
}

func (p *NATSPublisher) PublishTicket(t transit.Ticket) error {
	return p.publish("ticket", TicketSubject(t.From), t)
}

func (p *NATSPublisher) publish(kind, subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc(kind)
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
