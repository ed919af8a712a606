package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Collector struct {
	reg *prometheus.Registry

	Vehicles prometheus.Gauge

	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram

	ETARecomputes  prometheus.Counter
	ETABoardUpdate prometheus.Counter
	InvalidTargets prometheus.Counter

	TicketsIssued prometheus.Counter
	FareMisses    prometheus.Counter

	NATSPublished   *prometheus.CounterVec // kind label: position|eta|ticket
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	WSClients    prometheus.Gauge
	HTTPRequests *prometheus.CounterVec // method, status

	TickInterval       prometheus.Gauge // seconds
	ETAInterval        prometheus.Gauge // seconds
	DwellTicks         prometheus.Gauge
	SmoothingThreshold prometheus.Gauge // minutes
	UserFallback       prometheus.Gauge
}

func NewCollector(tickInterval, etaInterval time.Duration, dwellTicks int, smoothing float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_vehicles",
			Help: "Number of simulated vehicles.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_ticks_total",
			Help: "Total simulation ticks.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartbus_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		ETARecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_eta_recomputes_total",
			Help: "Total ETA recomputations.",
		}),
		ETABoardUpdate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_eta_board_updates_total",
			Help: "ETA recomputations that changed the displayed board.",
		}),
		InvalidTargets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_eta_invalid_targets_total",
			Help: "ETA requests for stops that are not in the network.",
		}),
		TicketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_tickets_issued_total",
			Help: "Total tickets issued.",
		}),
		FareMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_fare_misses_total",
			Help: "Tickets issued with no fare entry in either direction.",
		}),
		NATSPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbus_nats_published_total",
			Help: "Total NATS messages published.",
		}, []string{"kind"}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_ws_clients",
			Help: "Connected live feed clients.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbus_http_requests_total",
			Help: "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_tick_interval_seconds",
			Help: "Simulation tick interval in seconds.",
		}),
		ETAInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_eta_interval_seconds",
			Help: "ETA recompute interval in seconds.",
		}),
		DwellTicks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_dwell_ticks",
			Help: "Ticks a vehicle dwells at each stop.",
		}),
		SmoothingThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_eta_smoothing_minutes",
			Help: "Minimum ETA change before the board updates.",
		}),
		UserFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_user_location_fallback",
			Help: "1 if the default location replaced a failed geolocation.",
		}),
	}

	reg.MustRegister(
		c.Vehicles, c.Ticks, c.TickDuration,
		c.ETARecomputes, c.ETABoardUpdate, c.InvalidTargets,
		c.TicketsIssued, c.FareMisses,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.WSClients, c.HTTPRequests,
		c.TickInterval, c.ETAInterval, c.DwellTicks, c.SmoothingThreshold, c.UserFallback,
	)

	c.TickInterval.Set(tickInterval.Seconds())
	c.ETAInterval.Set(etaInterval.Seconds())
	c.DwellTicks.Set(float64(dwellTicks))
	c.SmoothingThreshold.Set(smoothing)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
