package precompute

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/observability"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/weather"
)

// bucketKey identifies one weather fetch: a coordinate rounded to the
// bucket precision plus a date. Every route inside the bucket shares
// the fetch.
type bucketKey struct {
	Lat  float64
	Lon  float64
	Date string
}

// bucketFor rounds a coordinate to the given precision (0.01 degrees is
// roughly one kilometer).
func bucketFor(lat, lon, precision float64, date time.Time) bucketKey {
	return bucketKey{
		Lat:  math.Round(lat/precision) * precision,
		Lon:  math.Round(lon/precision) * precision,
		Date: date.Format("2006-01-02"),
	}
}

func (k bucketKey) String() string {
	return fmt.Sprintf("%.4f:%.4f:%s", k.Lat, k.Lon, k.Date)
}

// prefetchCache is the run-scoped weather cache. It belongs to exactly
// one pipeline run and dies with it, so stale patterns can never leak
// across runs. Failed fetches are recorded as nil so the run scores
// those buckets with neutral weather instead of retrying per route.
type prefetchCache struct {
	source    weather.Source
	precision float64
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu       sync.RWMutex
	patterns map[bucketKey]*domain.WeatherPattern
}

func newPrefetchCache(source weather.Source, precision float64, metrics *observability.Metrics, logger *slog.Logger) *prefetchCache {
	return &prefetchCache{
		source:    source,
		precision: precision,
		metrics:   metrics,
		logger:    logger,
		patterns:  make(map[bucketKey]*domain.WeatherPattern),
	}
}

// prefetch resolves the weather pattern for every (bucket, date) pair
// the given routes need, fetching each missing bucket exactly once with
// bounded concurrency. It never fails the run: individual fetch errors
// leave a nil pattern behind.
func (p *prefetchCache) prefetch(ctx context.Context, routes []domain.Route, dates []time.Time, concurrency int) {
	// Dedupe before fetching so each bucket is requested once no matter
	// how many routes share it.
	missing := make([]bucketKey, 0)
	p.mu.Lock()
	for _, route := range routes {
		for _, date := range dates {
			key := bucketFor(route.Lat, route.Lon, p.precision, date)
			if _, seen := p.patterns[key]; !seen {
				missing = append(missing, key)
				// Mark so the same key is not appended twice within
				// this pass.
				p.patterns[key] = nil
			} else {
				p.metrics.BucketReuse.Inc()
			}
		}
	}
	p.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, key := range missing {
		key := key
		g.Go(func() error {
			date, _ := time.Parse("2006-01-02", key.Date)
			p.metrics.WeatherFetches.Inc()
			pattern, err := p.source.FetchCurrentPattern(gCtx, key.Lat, key.Lon, date)
			if err != nil {
				p.metrics.WeatherFetchErrors.Inc()
				p.logger.Warn("weather prefetch failed, bucket scores without pattern",
					"bucket", key.String(), "error", err)
				pattern = nil
			}
			p.mu.Lock()
			p.patterns[key] = pattern
			p.mu.Unlock()
			return nil
		})
	}
	// Errors never propagate; the group exists only for the limit.
	_ = g.Wait()
}

// pattern returns the prefetched pattern for a route and date, which may
// be nil (unavailable or failed fetch; scores neutrally).
func (p *prefetchCache) pattern(lat, lon float64, date time.Time) *domain.WeatherPattern {
	key := bucketFor(lat, lon, p.precision, date)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.patterns[key]
}

// size returns the number of cached buckets.
func (p *prefetchCache) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.patterns)
}
