package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"smartbus-simulator/internal/transit"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchNetwork reads the whole static network: stops, route_stops, fares and, when the
// table exists, vehicles. The result is not validated.
func FetchNetwork(ctx context.Context, db *sql.DB) (*transit.Network, error) {
	stops, err := FetchStops(ctx, db)
	if err != nil {
		return nil, err
	}
	routes, err := FetchRoutes(ctx, db)
	if err != nil {
		return nil, err
	}
	fares, err := FetchFares(ctx, db)
	if err != nil {
		return nil, err
	}
	vehicles, err := FetchVehicles(ctx, db)
	if err != nil {
		return nil, err
	}
	return &transit.Network{Stops: stops, Routes: routes, Fares: fares, Vehicles: vehicles}, nil
}

func FetchStops(ctx context.Context, db *sql.DB) ([]transit.Stop, error) {
	// Prefer lat/lng columns, but support a PostGIS geom geography column as fallback
	latlng, err := hasColumns(ctx, db, "public", "stops", "lat", "lng")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlng["lat"] && latlng["lng"] {
		q = `SELECT name, lat, lng FROM stops ORDER BY seq, name`
	} else {
		geom, err := hasColumns(ctx, db, "public", "stops", "geom")
		if err != nil {
			return nil, fmt.Errorf("introspect stops geom: %w", err)
		}
		if !geom["geom"] {
			return nil, fmt.Errorf("stops table missing expected columns (lat/lng or geom)")
		}
		q = `SELECT name, ST_Y(geom::geometry), ST_X(geom::geometry) FROM stops ORDER BY seq, name`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var stops []transit.Stop
	for rows.Next() {
		var s transit.Stop
		if err := rows.Scan(&s.Name, &s.Lat, &s.Lng); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func FetchRoutes(ctx context.Context, db *sql.DB) ([]transit.Route, error) {
	q := `SELECT route_id, stop_name FROM route_stops ORDER BY route_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()

	var routes []transit.Route
	for rows.Next() {
		var routeID, stop string
		if err := rows.Scan(&routeID, &stop); err != nil {
			return nil, err
		}
		if n := len(routes); n == 0 || routes[n-1].ID != routeID {
			routes = append(routes, transit.Route{ID: routeID})
		}
		r := &routes[len(routes)-1]
		r.Stops = append(r.Stops, stop)
	}
	return routes, rows.Err()
}

func FetchFares(ctx context.Context, db *sql.DB) (transit.FareTable, error) {
	q := `SELECT from_stop, to_stop, amount FROM fares`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query fares: %w", err)
	}
	defer rows.Close()
	fares := transit.FareTable{}
	for rows.Next() {
		var from, to string
		var amount float64
		if err := rows.Scan(&from, &to, &amount); err != nil {
			return nil, err
		}
		fares.Set(from, to, amount)
	}
	return fares, rows.Err()
}

// FetchVehicles returns nil when the vehicles table does not exist.
func FetchVehicles(ctx context.Context, db *sql.DB) ([]transit.VehicleSpec, error) {
	cols, err := hasColumns(ctx, db, "public", "vehicles", "vehicle_id")
	if err != nil {
		return nil, fmt.Errorf("introspect vehicles: %w", err)
	}
	if !cols["vehicle_id"] {
		return nil, nil
	}
	q := `SELECT vehicle_id, route_id, COALESCE(start_index, 0) FROM vehicles ORDER BY vehicle_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()
	var out []transit.VehicleSpec
	for rows.Next() {
		var v transit.VehicleSpec
		if err := rows.Scan(&v.ID, &v.RouteID, &v.StartIndex); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
