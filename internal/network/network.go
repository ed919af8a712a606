// Package network loads and validates the static stop, route, fare and fleet tables.
package network

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"smartbus-simulator/internal/geo"
	"smartbus-simulator/internal/transit"
)

//go:embed default.yaml
var defaultNetwork []byte

var ErrInvalidNetwork = errors.New("invalid network")

// file mirrors the YAML layout. Fares are a flat list because viper lower-cases map keys,
// which would mangle stop names used as keys.
type file struct {
	Stops []struct {
		Name string  `mapstructure:"name"`
		Lat  float64 `mapstructure:"lat"`
		Lng  float64 `mapstructure:"lng"`
	} `mapstructure:"stops"`
	Routes []struct {
		ID    string   `mapstructure:"id"`
		Stops []string `mapstructure:"stops"`
	} `mapstructure:"routes"`
	Fares []struct {
		From   string  `mapstructure:"from"`
		To     string  `mapstructure:"to"`
		Amount float64 `mapstructure:"amount"`
	} `mapstructure:"fares"`
	Vehicles []struct {
		ID         string `mapstructure:"id"`
		Route      string `mapstructure:"route"`
		StartIndex int    `mapstructure:"start_index"`
	} `mapstructure:"vehicles"`
}

// Default returns the embedded Kathmandu demo network.
func Default() (*transit.Network, error) {
	return Parse(defaultNetwork)
}

// LoadFile reads a network from a YAML (or any viper-supported) file.
// An empty path returns the embedded default.
func LoadFile(path string) (*transit.Network, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read network file %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads a YAML network document.
func Parse(data []byte) (*transit.Network, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse network: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*transit.Network, error) {
	var f file
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	n := &transit.Network{Fares: transit.FareTable{}}
	for _, s := range f.Stops {
		n.Stops = append(n.Stops, transit.Stop{Name: strings.TrimSpace(s.Name), Lat: s.Lat, Lng: s.Lng})
	}
	for _, r := range f.Routes {
		stops := make([]string, len(r.Stops))
		for i, name := range r.Stops {
			stops[i] = strings.TrimSpace(name)
		}
		n.Routes = append(n.Routes, transit.Route{ID: strings.TrimSpace(r.ID), Stops: stops})
	}
	for _, fr := range f.Fares {
		n.Fares.Set(strings.TrimSpace(fr.From), strings.TrimSpace(fr.To), fr.Amount)
	}
	for _, vs := range f.Vehicles {
		n.Vehicles = append(n.Vehicles, transit.VehicleSpec{ID: strings.TrimSpace(vs.ID), RouteID: strings.TrimSpace(vs.Route), StartIndex: vs.StartIndex})
	}
	if err := Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the preconditions the simulator relies on: unique stop names,
// routes of at least two known stops, non-negative fares between known stops and
// vehicles placed on existing routes. All problems are reported together.
func Validate(n *transit.Network) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidNetwork}, args...)...))
	}

	if len(n.Stops) == 0 {
		bad("no stops")
	}
	known := make(map[string]bool, len(n.Stops))
	for i, s := range n.Stops {
		switch {
		case s.Name == "":
			bad("stop %d has no name", i)
		case known[s.Name]:
			bad("duplicate stop %q", s.Name)
		}
		if !s.Point().Valid() {
			bad("stop %q has out of range coordinates (%f, %f)", s.Name, s.Lat, s.Lng)
		}
		known[s.Name] = true
	}

	routes := make(map[string]int, len(n.Routes))
	for _, r := range n.Routes {
		if r.ID == "" {
			bad("route with empty id")
		}
		if _, dup := routes[r.ID]; dup {
			bad("duplicate route %q", r.ID)
		}
		routes[r.ID] = len(r.Stops)
		if len(r.Stops) < 2 {
			bad("route %q needs at least 2 stops, has %d", r.ID, len(r.Stops))
		}
		for _, name := range r.Stops {
			if !known[name] {
				bad("route %q references unknown stop %q", r.ID, name)
			}
		}
	}

	for from, row := range n.Fares {
		for to, amount := range row {
			if !known[from] || !known[to] {
				bad("fare %q -> %q references unknown stop", from, to)
			}
			if !geo.Finite(amount) || amount < 0 {
				bad("fare %q -> %q is not a non-negative amount (%v)", from, to, amount)
			}
		}
	}

	vehicles := make(map[string]bool, len(n.Vehicles))
	for _, v := range n.Vehicles {
		if v.ID == "" {
			bad("vehicle with empty id")
		}
		if vehicles[v.ID] {
			bad("duplicate vehicle %q", v.ID)
		}
		vehicles[v.ID] = true
		length, ok := routes[v.RouteID]
		if !ok {
			bad("vehicle %q references unknown route %q", v.ID, v.RouteID)
			continue
		}
		if v.StartIndex < 0 || v.StartIndex >= length {
			bad("vehicle %q start index %d out of range for route %q", v.ID, v.StartIndex, v.RouteID)
		}
	}

	return errors.Join(errs...)
}
