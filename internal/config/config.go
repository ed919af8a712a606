package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/geo"
)

const (
	NetworkFromFile     = "file"
	NetworkFromPostgres = "postgres"
)

type Config struct {
	NetworkSource string
	NetworkFile   string // empty means the embedded default network
	DatabaseURL   string

	NATSURL         string // empty disables publishing
	LogNATSSubjects bool
	HTTPAddr        string
	MetricsAddr     string

	TickInterval    time.Duration
	ETAInterval     time.Duration
	PublishInterval time.Duration

	DwellTicks   int
	ProgressStep float64
	Metric       geo.Metric
	ETAScale     float64 // minutes per distance unit of Metric
	DwellPenalty float64 // minutes
	Smoothing    float64 // minutes

	FareReverseFallback bool
	TicketRefresh       bool

	GeolocateURL     string
	GeolocateTimeout time.Duration
	UserLocation     *geo.Point
	DefaultLocation  geo.Point

	LogLevel  log.Level
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.NetworkSource = strings.ToLower(getenvDefault("NETWORK_SOURCE", NetworkFromFile))
	switch cfg.NetworkSource {
	case NetworkFromFile:
		cfg.NetworkFile = os.Getenv("NETWORK_FILE")
	case NetworkFromPostgres:
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	default:
		return nil, fmt.Errorf("invalid NETWORK_SOURCE: %q", cfg.NetworkSource)
	}

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.LogNATSSubjects = getenvBool("LOG_NATS_SUBJECTS", false)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	var err error
	if cfg.TickInterval, err = getenvMillis("TICK_INTERVAL_MS", 100); err != nil {
		return nil, err
	}
	if cfg.PublishInterval, err = getenvMillis("PUBLISH_INTERVAL_MS", 1000); err != nil {
		return nil, err
	}
	if v := os.Getenv("ETA_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid ETA_INTERVAL_SEC: %q", v)
		}
		cfg.ETAInterval = time.Duration(sec) * time.Second
	} else {
		cfg.ETAInterval = 5 * time.Second
	}

	if v := os.Getenv("DWELL_TICKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid DWELL_TICKS: %q", v)
		}
		cfg.DwellTicks = n
	} else {
		cfg.DwellTicks = 20
	}

	if cfg.ProgressStep, err = getenvFloat("PROGRESS_STEP", 0.01); err != nil {
		return nil, err
	}
	if cfg.ProgressStep <= 0 || cfg.ProgressStep >= 1 {
		return nil, fmt.Errorf("invalid PROGRESS_STEP: %v (must be in (0,1))", cfg.ProgressStep)
	}

	if cfg.Metric, err = geo.ParseMetric(os.Getenv("DISTANCE_METRIC")); err != nil {
		return nil, fmt.Errorf("invalid DISTANCE_METRIC: %w", err)
	}
	// ~20 km/h for meters; one degree is roughly 111 km
	defaultScale := 0.003
	if cfg.Metric == geo.Euclidean {
		defaultScale = 333
	}
	if cfg.ETAScale, err = getenvFloat("ETA_SCALE", defaultScale); err != nil {
		return nil, err
	}
	if cfg.DwellPenalty, err = getenvFloat("DWELL_PENALTY_MIN", 2); err != nil {
		return nil, err
	}
	if cfg.Smoothing, err = getenvFloat("ETA_SMOOTHING_MIN", 1); err != nil {
		return nil, err
	}

	cfg.FareReverseFallback = getenvBool("FARE_REVERSE_FALLBACK", true)
	cfg.TicketRefresh = getenvBool("TICKET_REFRESH", false)

	cfg.GeolocateURL = os.Getenv("GEOLOCATE_URL")
	if cfg.GeolocateTimeout, err = getenvMillis("GEOLOCATE_TIMEOUT_MS", 5000); err != nil {
		return nil, err
	}
	if lat, lng := os.Getenv("USER_LAT"), os.Getenv("USER_LNG"); lat != "" || lng != "" {
		p, err := parsePoint("USER_LAT", lat, "USER_LNG", lng)
		if err != nil {
			return nil, err
		}
		cfg.UserLocation = &p
	}
	cfg.DefaultLocation = geo.Point{Lat: 27.7172, Lng: 85.3240}
	if lat, lng := os.Getenv("DEFAULT_LAT"), os.Getenv("DEFAULT_LNG"); lat != "" || lng != "" {
		p, err := parsePoint("DEFAULT_LAT", lat, "DEFAULT_LNG", lng)
		if err != nil {
			return nil, err
		}
		cfg.DefaultLocation = p
	}

	cfg.LogLevel = log.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		lvl, err := log.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %q", v)
		}
		cfg.LogLevel = lvl
	}
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", fmt.Errorf("PGDATABASE or DATABASE_URL must be set when NETWORK_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func parsePoint(latKey, lat, lngKey, lng string) (geo.Point, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || !(geo.Point{Lat: la}).Valid() {
		return geo.Point{}, fmt.Errorf("invalid %s: %q", latKey, lat)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil || !(geo.Point{Lng: ln}).Valid() {
		return geo.Point{}, fmt.Errorf("invalid %s: %q", lngKey, lng)
	}
	return geo.Point{Lat: la, Lng: ln}, nil
}

func getenvMillis(k string, def int) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return time.Duration(def) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getenvFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !geo.Finite(f) || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
