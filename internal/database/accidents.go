package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// FetchAccidents returns accident records around a center point. A nil
// radius returns every record with valid coordinates and a date; a zero
// radius resolves to the configured maximum. With a radius, a
// bounding-box prefilter runs in SQL and the exact great-circle
// distance is re-checked in Go, so no spatial extension is required on
// the database.
func (db *DB) FetchAccidents(ctx context.Context, lat, lon float64, radiusKm *float64, filters domain.AccidentFilters) ([]domain.AccidentRecord, error) {
	query := `
		SELECT id, lat, lon, elevation, grade, accident_date, route_type, severity, weather_pattern
		FROM accidents
		WHERE lat IS NOT NULL AND lon IS NOT NULL AND accident_date IS NOT NULL
	`
	args := []any{}

	var radius float64
	if radiusKm != nil {
		if *radiusKm < 0 {
			return nil, fmt.Errorf("negative search radius: %f", *radiusKm)
		}
		radius = *radiusKm
		if radius == 0 {
			radius = db.scoring.MaxSearchRadiusKm
		}
		latDelta := radius / 111.0
		lonDelta := latDelta
		if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 0.01 {
			lonDelta = radius / (111.0 * cosLat)
		}
		query += fmt.Sprintf(" AND lat BETWEEN $%d AND $%d AND lon BETWEEN $%d AND $%d",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4)
		args = append(args, lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta)
	}

	if filters.Since != nil {
		query += fmt.Sprintf(" AND accident_date >= $%d", len(args)+1)
		args = append(args, *filters.Since)
	}

	if len(filters.RouteTypes) > 0 {
		placeholders := ""
		for i, rt := range filters.RouteTypes {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += fmt.Sprintf("$%d", len(args)+1)
			args = append(args, string(rt))
		}
		query += fmt.Sprintf(" AND route_type IN (%s)", placeholders)
	}

	query += " ORDER BY id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accidents: %w", err)
	}
	defer rows.Close()

	accidents, err := scanAccidents(rows)
	if err != nil {
		return nil, err
	}

	if radiusKm == nil {
		return accidents, nil
	}

	// The bounding box over-selects near its corners; keep only records
	// truly within the radius.
	within := accidents[:0]
	for _, acc := range accidents {
		if db.scoring.WithinSearchRadius(lat, lon, acc.Lat, acc.Lon, radius) {
			within = append(within, acc)
		}
	}
	return within, nil
}

func scanAccidents(rows *sql.Rows) ([]domain.AccidentRecord, error) {
	var accidents []domain.AccidentRecord
	for rows.Next() {
		var (
			acc       domain.AccidentRecord
			elevation sql.NullFloat64
			grade     sql.NullFloat64
			routeType string
			severity  string
			weather   []byte
		)
		if err := rows.Scan(&acc.ID, &acc.Lat, &acc.Lon, &elevation, &grade, &acc.Date, &routeType, &severity, &weather); err != nil {
			return nil, fmt.Errorf("failed to scan accident: %w", err)
		}
		if elevation.Valid {
			e := elevation.Float64
			acc.Elevation = &e
		}
		if grade.Valid {
			g := grade.Float64
			acc.Grade = &g
		}
		acc.RouteType = domain.ParseRouteType(routeType)
		acc.Severity = domain.ParseSeverity(severity)
		if len(weather) > 0 {
			var pattern domain.WeatherPattern
			// Malformed historical weather degrades to "no pattern"
			// rather than failing the whole fetch.
			if err := json.Unmarshal(weather, &pattern); err == nil && pattern.Valid() {
				acc.Weather = &pattern
			}
		}
		accidents = append(accidents, acc)
	}
	return accidents, rows.Err()
}
