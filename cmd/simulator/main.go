package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/api"
	"smartbus-simulator/internal/config"
	"smartbus-simulator/internal/db"
	"smartbus-simulator/internal/locate"
	"smartbus-simulator/internal/metrics"
	"smartbus-simulator/internal/network"
	"smartbus-simulator/internal/publisher"
	"smartbus-simulator/internal/sim"
	"smartbus-simulator/internal/ticket"
	"smartbus-simulator/internal/transit"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg.ConfigureLogging()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n, err := loadNetwork(ctx, cfg)
	if err != nil {
		log.Fatalf("network error: %v", err)
	}
	log.WithFields(log.Fields{
		"stops":    len(n.Stops),
		"routes":   len(n.Routes),
		"vehicles": len(n.Vehicles),
		"source":   cfg.NetworkSource,
	}).Info("network loaded")

	// One-shot geolocation
	lctx, lcancel := context.WithTimeout(ctx, cfg.GeolocateTimeout)
	user, fromFallback := locate.Resolve(lctx, locationProvider(cfg), cfg.DefaultLocation)
	lcancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval, cfg.ETAInterval, cfg.DwellTicks, cfg.Smoothing)
		if fromFallback {
			mcol.UserFallback.Set(1)
		}
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// NATS is optional; without it the simulation is only visible over HTTP
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
	}

	params := sim.Params{
		DwellTicks:   cfg.DwellTicks,
		Step:         cfg.ProgressStep,
		Metric:       cfg.Metric,
		Scale:        cfg.ETAScale,
		DwellPenalty: cfg.DwellPenalty,
	}
	engine, err := sim.NewEngine(n, params, user, fromFallback, cfg.Smoothing)
	if err != nil {
		log.Fatalf("simulation error: %v", err)
	}
	u := engine.User()
	log.WithFields(log.Fields{
		"lat":      u.Point.Lat,
		"lng":      u.Point.Lng,
		"fallback": u.Fallback,
		"nearest":  u.Nearest.Name,
	}).Info("user located")

	office := ticket.NewOffice(n.Fares, cfg.FareReverseFallback, ticket.NewRegistry())
	office.OnIssue = func(t transit.Ticket, fareFound bool) {
		if mcol != nil {
			mcol.TicketsIssued.Inc()
			if !fareFound {
				mcol.FareMisses.Inc()
			}
		}
		if pub != nil {
			if err := pub.PublishTicket(t); err != nil {
				log.WithError(err).Warn("publish ticket")
			}
		}
	}

	hub := api.NewHub(func() api.Frame {
		return api.Frame{
			Type:      "hello",
			Timestamp: time.Now(),
			Stops:     n.Stops,
			Routes:    n.Routes,
			User:      engine.User(),
			Vehicles:  engine.Vehicles(),
		}
	}, mcol)
	defer hub.Close()

	runner := sim.NewRunner(engine, cfg.TickInterval, cfg.ETAInterval, cfg.PublishInterval, sim.Hooks{
		Positions: func(at time.Time, vehicles []transit.VehicleState) {
			if pub != nil {
				if err := pub.PublishPositions(at, vehicles); err != nil {
					log.WithError(err).Warn("publish positions")
				}
			}
			hub.Broadcast(api.PositionsFrame(at, vehicles))
		},
		Board: func(board transit.Snapshot) {
			if pub != nil {
				if err := pub.PublishBoard(board); err != nil {
					log.WithError(err).Warn("publish eta board")
				}
			}
			hub.Broadcast(api.ETAFrame(board))
		},
	}, mcol)
	runner.Start(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(engine, office, hub, mcol, api.Options{RefreshTickets: cfg.TicketRefresh}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server error: %v", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = server.Shutdown(shutdownCtx)
	runner.Stop()
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
}

func loadNetwork(ctx context.Context, cfg *config.Config) (*transit.Network, error) {
	if cfg.NetworkSource != config.NetworkFromPostgres {
		return network.LoadFile(cfg.NetworkFile)
	}
	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return nil, err
	}
	n, err := db.FetchNetwork(ctx, sqlDB)
	if err != nil {
		return nil, err
	}
	if err := network.Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

func locationProvider(cfg *config.Config) locate.Provider {
	switch {
	case cfg.UserLocation != nil:
		return locate.StaticProvider{Point: *cfg.UserLocation}
	case cfg.GeolocateURL != "":
		return locate.NewHTTPProvider(cfg.GeolocateURL, cfg.GeolocateTimeout)
	default:
		return locate.NoProvider{}
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc(kind string)   { p.c.NATSPublished.WithLabelValues(kind).Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
