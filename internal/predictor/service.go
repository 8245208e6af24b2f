// Package predictor wires the scoring engine to its collaborators for
// the interactive path: cache read-through, candidate accident fetch,
// forecast fetch, score, cache write.
package predictor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/weather"
)

// AccidentSource provides candidate accidents around a point. A nil
// radius means all valid records.
type AccidentSource interface {
	FetchAccidents(ctx context.Context, lat, lon float64, radiusKm *float64, filters domain.AccidentFilters) ([]domain.AccidentRecord, error)
}

// Options tunes a single prediction call.
type Options struct {
	// WeatherOverride replaces the fetched forecast pattern, e.g. for
	// backtesting against recorded conditions. Overridden predictions
	// bypass the cache in both directions.
	WeatherOverride *domain.WeatherPattern

	// SearchRadiusKm overrides the configured candidate radius. Must be
	// positive when set. Overridden predictions bypass the cache in both
	// directions so a narrow-radius result never shadows the canonical
	// full-radius entry.
	SearchRadiusKm *float64

	// SkipCache forces a fresh computation.
	SkipCache bool
}

// Service is the interactive prediction entry point.
type Service struct {
	engine    *scoring.Engine
	cache     *cache.Cache
	accidents AccidentSource
	weather   weather.Source
	logger    *slog.Logger
	scoreTTL  time.Duration
}

// New creates a predictor service.
func New(engine *scoring.Engine, c *cache.Cache, accidents AccidentSource, w weather.Source, logger *slog.Logger, scoreTTL time.Duration) *Service {
	if scoreTTL <= 0 {
		scoreTTL = cache.ScoreTTL
	}
	return &Service{
		engine:    engine,
		cache:     c,
		accidents: accidents,
		weather:   w,
		logger:    logger,
		scoreTTL:  scoreTTL,
	}
}

// PredictSafety computes the risk prediction for a route on a planned
// date. Missing weather degrades to neutral weighting; an unreachable
// accident archive is the one failure that makes a prediction
// impossible, reported as an error distinct from a valid low-confidence
// result.
func (s *Service) PredictSafety(ctx context.Context, route domain.Route, plannedDate time.Time, opts Options) (*domain.SafetyPrediction, error) {
	if opts.SearchRadiusKm != nil && *opts.SearchRadiusKm <= 0 {
		return nil, fmt.Errorf("search radius must be positive, got %f", *opts.SearchRadiusKm)
	}

	useCache := !opts.SkipCache && opts.WeatherOverride == nil && opts.SearchRadiusKm == nil
	key := cache.SafetyKey(route.ID, plannedDate)

	if useCache {
		if cached, ok := s.cache.GetPrediction(ctx, key); ok {
			return cached, nil
		}
	}

	radius := s.engine.Config().MaxSearchRadiusKm
	if opts.SearchRadiusKm != nil {
		radius = *opts.SearchRadiusKm
	}

	accidents, err := s.accidents.FetchAccidents(ctx, route.Lat, route.Lon, &radius, domain.AccidentFilters{})
	if err != nil {
		return nil, fmt.Errorf("could not compute prediction: %w", err)
	}

	pattern := opts.WeatherOverride
	if pattern == nil {
		pattern, err = s.weather.FetchCurrentPattern(ctx, route.Lat, route.Lon, plannedDate)
		if err != nil {
			// Weather is non-essential: score with neutral weather
			// weights rather than failing the request.
			s.logger.Warn("weather fetch failed, scoring without pattern",
				"route_id", route.ID, "error", err)
			pattern = nil
		}
	}

	// Seasonal norms back up accidents without a recorded pattern. They
	// only matter when there is a forecast to compare against.
	var stats *domain.WeatherStats
	if pattern.Valid() {
		elev := 0.0
		if route.Elevation != nil {
			elev = *route.Elevation
		}
		stats, err = s.weather.FetchHistoricalStats(ctx, route.Lat, route.Lon, elev, domain.SeasonOf(plannedDate))
		if err != nil {
			s.logger.Warn("historical stats fetch failed, scoring without norms",
				"route_id", route.ID, "error", err)
			stats = nil
		}
	}

	prediction := s.engine.Score(route, plannedDate, pattern, stats, accidents)

	if useCache {
		s.cache.SetPrediction(ctx, key, &prediction, s.scoreTTL)
	}
	return &prediction, nil
}

// PredictWindow returns predictions for `days` consecutive dates
// starting at start, keyed by YYYY-MM-DD. Cached entries arrive in one
// bulk round trip; the misses are computed and cached individually.
func (s *Service) PredictWindow(ctx context.Context, route domain.Route, start time.Time, days int, opts Options) (map[string]*domain.SafetyPrediction, error) {
	if days <= 0 {
		return nil, fmt.Errorf("window must cover at least one day, got %d", days)
	}

	dates := make([]time.Time, days)
	keys := make([]string, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
		keys[i] = cache.SafetyKey(route.ID, dates[i])
	}

	result := make(map[string]*domain.SafetyPrediction, days)

	if !opts.SkipCache && opts.WeatherOverride == nil && opts.SearchRadiusKm == nil {
		cached := s.cache.BulkGetPredictions(ctx, keys)
		for i, key := range keys {
			if p, ok := cached[key]; ok {
				result[dates[i].Format("2006-01-02")] = p
			}
		}
	}

	for _, date := range dates {
		day := date.Format("2006-01-02")
		if _, ok := result[day]; ok {
			continue
		}
		p, err := s.PredictSafety(ctx, route, date, opts)
		if err != nil {
			return nil, err
		}
		result[day] = p
	}
	return result, nil
}

// InvalidateRoute drops every cached prediction for a route, forcing
// recomputation on the next queries. Returns the number of entries
// removed; a degraded cache yields zero.
func (s *Service) InvalidateRoute(ctx context.Context, routeID int64) int {
	return s.cache.ClearPattern(ctx, cache.RouteKeyPattern(routeID))
}
