package weather

import (
	"context"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// TTLs for cached weather data. Forecast patterns churn with every model
// run; seasonal statistics barely move.
const (
	patternTTL = 6 * time.Hour
	statsTTL   = 7 * 24 * time.Hour
)

// CachedSource decorates a Source with read-through caching under the
// stable weather key formats. A degraded cache silently turns every
// lookup into a provider call.
type CachedSource struct {
	inner Source
	cache *cache.Cache
}

// NewCachedSource wraps a weather source with the durable cache.
func NewCachedSource(inner Source, c *cache.Cache) *CachedSource {
	return &CachedSource{inner: inner, cache: c}
}

func (s *CachedSource) FetchCurrentPattern(ctx context.Context, lat, lon float64, date time.Time) (*domain.WeatherPattern, error) {
	key := cache.WeatherPatternKey(lat, lon, date)

	var cached domain.WeatherPattern
	if s.cache.GetJSON(ctx, key, &cached) && cached.Valid() {
		return &cached, nil
	}

	pattern, err := s.inner.FetchCurrentPattern(ctx, lat, lon, date)
	if err != nil || pattern == nil {
		return pattern, err
	}
	s.cache.SetJSON(ctx, key, pattern, patternTTL)
	return pattern, nil
}

func (s *CachedSource) FetchHistoricalStats(ctx context.Context, lat, lon, elevation float64, season domain.Season) (*domain.WeatherStats, error) {
	key := cache.WeatherStatsKey(lat, lon, elevation, season)

	var cached domain.WeatherStats
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := s.inner.FetchHistoricalStats(ctx, lat, lon, elevation, season)
	if err != nil || stats == nil {
		return stats, err
	}
	s.cache.SetJSON(ctx, key, stats, statsTTL)
	return stats, nil
}
