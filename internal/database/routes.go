package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// FetchRoutesWithCoordinates returns one page of routes that have valid
// coordinates. The pipeline pages through the whole catalog with this
// single query shape.
func (db *DB) FetchRoutesWithCoordinates(ctx context.Context, limit, offset int) ([]domain.Route, error) {
	query := `
		SELECT id, name, lat, lon, elevation, grade, route_type, popularity
		FROM routes
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	return scanRoutes(rows)
}

// FetchPopularRoutes returns the top routes by the fixed popularity
// ordering, for the cache warmer.
func (db *DB) FetchPopularRoutes(ctx context.Context, limit int) ([]domain.Route, error) {
	query := `
		SELECT id, name, lat, lon, elevation, grade, route_type, popularity
		FROM routes
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY popularity DESC, id
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular routes: %w", err)
	}
	defer rows.Close()

	return scanRoutes(rows)
}

// FetchRouteByID looks up a single route for on-demand prediction.
func (db *DB) FetchRouteByID(ctx context.Context, id string) (*domain.Route, error) {
	query := `
		SELECT id, name, lat, lon, elevation, grade, route_type, popularity
		FROM routes
		WHERE id = $1
	`

	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}
	defer rows.Close()

	routes, err := scanRoutes(rows)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("route %s not found", id)
	}
	return &routes[0], nil
}

func scanRoutes(rows *sql.Rows) ([]domain.Route, error) {
	var routes []domain.Route
	for rows.Next() {
		var (
			r          domain.Route
			elevation  sql.NullFloat64
			grade      sql.NullFloat64
			routeType  string
			popularity sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Lat, &r.Lon, &elevation, &grade, &routeType, &popularity); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		if elevation.Valid {
			e := elevation.Float64
			r.Elevation = &e
		}
		if grade.Valid {
			g := grade.Float64
			r.Grade = &g
		}
		r.RouteType = domain.ParseRouteType(routeType)
		r.Popularity = int(popularity.Int64)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}
