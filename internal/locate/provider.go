package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"smartbus-simulator/internal/geo"
)

var ErrUnavailable = errors.New("geolocation unavailable")

// Provider answers a single "where is the user" query.
type Provider interface {
	Locate(ctx context.Context) (geo.Point, error)
}

// StaticProvider reports a fixed position.
type StaticProvider struct {
	Point geo.Point
}

func (p StaticProvider) Locate(context.Context) (geo.Point, error) { return p.Point, nil }

// NoProvider always fails with ErrUnavailable.
type NoProvider struct{}

func (NoProvider) Locate(context.Context) (geo.Point, error) { return geo.Point{}, ErrUnavailable }

// HTTPProvider queries a JSON endpoint returning {"lat":..,"lng":..}
// (or {"latitude":..,"longitude":..}).
type HTTPProvider struct {
	URL    string
	client *http.Client
}

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{URL: url, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProvider) Locate(ctx context.Context) (geo.Point, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("building geolocation request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Point{}, fmt.Errorf("%w: parsing response: %v", ErrUnavailable, err)
	}
	lat, lng := body.Lat, body.Lng
	if lat == nil || lng == nil {
		lat, lng = body.Latitude, body.Longitude
	}
	if lat == nil || lng == nil {
		return geo.Point{}, fmt.Errorf("%w: response has no coordinates", ErrUnavailable)
	}
	return geo.Point{Lat: *lat, Lng: *lng}, nil
}

// Resolve performs the one-shot geolocation query and substitutes fallback on any
// failure. fromFallback reports whether the substitution happened.
func Resolve(ctx context.Context, p Provider, fallback geo.Point) (pt geo.Point, fromFallback bool) {
	if p == nil {
		p = NoProvider{}
	}
	pt, err := p.Locate(ctx)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"lat": fallback.Lat,
			"lng": fallback.Lng,
		}).Warn("geolocation failed, using default location")
		return fallback, true
	}
	return pt, false
}
