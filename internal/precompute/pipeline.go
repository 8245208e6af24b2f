// Package precompute runs the scoring engine over the route catalog
// ahead of demand, so the interactive path is cache-only for every
// precomputed (route, date) pair. The nightly Pipeline sweeps the whole
// catalog; the Warmer refreshes a small popular subset between sweeps.
package precompute

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/observability"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/protocol"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/weather"
	"github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"
)

// RouteCatalog pages through routes with valid coordinates.
type RouteCatalog interface {
	FetchRoutesWithCoordinates(ctx context.Context, limit, offset int) ([]domain.Route, error)
	FetchPopularRoutes(ctx context.Context, limit int) ([]domain.Route, error)
}

// AccidentSource provides candidate accidents around a point.
type AccidentSource interface {
	FetchAccidents(ctx context.Context, lat, lon float64, radiusKm *float64, filters domain.AccidentFilters) ([]domain.AccidentRecord, error)
}

// RunPublisher announces finished runs. Publishing is best-effort; a
// publish failure never fails a run.
type RunPublisher interface {
	PublishRunSummary(ctx context.Context, summary *protocol.RunSummary) error
}

// Pipeline is the catalog-wide precomputation job.
type Pipeline struct {
	catalog   RouteCatalog
	accidents AccidentSource
	weather   weather.Source
	cache     *cache.Cache
	engine    *scoring.Engine
	publisher RunPublisher // may be nil
	metrics   *observability.Metrics
	logger    *slog.Logger
	clock     clockwork.Clock
	cfg       config.PipelineConfig
}

// NewPipeline assembles a precomputation pipeline.
func NewPipeline(
	catalog RouteCatalog,
	accidents AccidentSource,
	w weather.Source,
	c *cache.Cache,
	engine *scoring.Engine,
	publisher RunPublisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
	clock clockwork.Clock,
	cfg config.PipelineConfig,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BucketPrecision <= 0 {
		cfg.BucketPrecision = 0.01
	}
	if cfg.ScoreTTL <= 0 {
		cfg.ScoreTTL = cache.ScoreTTL
	}
	return &Pipeline{
		catalog:   catalog,
		accidents: accidents,
		weather:   w,
		cache:     c,
		engine:    engine,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
		cfg:       cfg,
	}
}

// Run sweeps the entire route catalog, computing and caching a
// prediction for every route and every date in the forecast horizon.
// Individual route or date failures are counted, never fatal; the run
// fails only when the catalog itself cannot be read or the context is
// cancelled. The returned summary is always non-nil.
func (p *Pipeline) Run(ctx context.Context, horizonDays int) (*protocol.RunSummary, error) {
	if horizonDays <= 0 {
		horizonDays = p.cfg.HorizonDays
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}

	start := p.clock.Now().UTC()
	summary := &protocol.RunSummary{
		RunID:         uuid.NewString(),
		Job:           protocol.JobPipeline,
		DatesPerRoute: horizonDays,
		StartedAt:     start,
	}
	logger := p.logger.With("run_id", summary.RunID, "job", summary.Job)

	p.metrics.RunRunning.Set(1)
	defer p.metrics.RunRunning.Set(0)

	dates := forecastDates(start, horizonDays)
	// The prefetch cache lives and dies with this run; nothing from a
	// previous sweep can go stale into this one.
	prefetch := newPrefetchCache(p.weather, p.cfg.BucketPrecision, p.metrics, logger)

	logger.Info("precomputation run started",
		"horizon_days", horizonDays,
		"batch_size", p.cfg.BatchSize,
		"concurrency", p.cfg.Concurrency,
	)

	var lastProgress int
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, logger, summary, protocol.RunStateFailed, err)
		}

		routes, err := p.catalog.FetchRoutesWithCoordinates(ctx, p.cfg.BatchSize, offset)
		if err != nil {
			logger.Error("route catalog fetch failed", "offset", offset, "error", err)
			return p.finish(ctx, logger, summary, protocol.RunStateFailed, err)
		}
		if len(routes) == 0 {
			break
		}

		p.processBatch(ctx, routes, dates, prefetch, summary, logger)
		offset += len(routes)

		if p.cfg.ProgressEvery > 0 && summary.RoutesProcessed-lastProgress >= p.cfg.ProgressEvery {
			lastProgress = summary.RoutesProcessed
			logger.Info("precomputation progress",
				"routes_processed", summary.RoutesProcessed,
				"warmed", summary.TotalWarmed,
				"failed", summary.TotalFailed,
				"weather_buckets", prefetch.size(),
			)
		}

		if len(routes) < p.cfg.BatchSize {
			break
		}

		// A short pause between batches keeps the database and weather
		// backends from seeing one continuous burst.
		if p.cfg.BatchPause > 0 {
			select {
			case <-p.clock.After(p.cfg.BatchPause):
			case <-ctx.Done():
			}
		}
	}

	// Housekeeping: drop cached predictions for dates that fell out of
	// the forecast window.
	keep := make(map[string]bool, len(dates))
	for _, d := range dates {
		keep[d.Format("2006-01-02")] = true
	}
	summary.PrunedKeys = p.cache.PruneExpiredDates(ctx, keep)

	return p.finish(ctx, logger, summary, protocol.RunStateDone, nil)
}

// processBatch prefetches the batch's weather buckets, then scores every
// (route, date) pair with bounded concurrency and flushes the results in
// one bulk cache write.
func (p *Pipeline) processBatch(ctx context.Context, routes []domain.Route, dates []time.Time, prefetch *prefetchCache, summary *protocol.RunSummary, logger *slog.Logger) {
	batchStart := p.clock.Now()

	prefetch.prefetch(ctx, routes, dates, p.cfg.Concurrency)

	var (
		mu      sync.Mutex
		entries = make(map[string]*domain.SafetyPrediction, len(routes)*len(dates))
		failed  int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, route := range routes {
		route := route
		g.Go(func() error {
			radius := p.cfg.SearchRadiusKm
			accidents, err := p.accidents.FetchAccidents(gCtx, route.Lat, route.Lon, &radius, domain.AccidentFilters{})
			if err != nil {
				// One bad route must not abort the sweep; every date
				// for it counts as failed.
				logger.Warn("accident fetch failed, skipping route",
					"route_id", route.ID, "error", err)
				mu.Lock()
				failed += len(dates)
				mu.Unlock()
				return nil
			}

			elev := 0.0
			if route.Elevation != nil {
				elev = *route.Elevation
			}
			// A horizon crosses at most one season boundary, so the
			// per-route stats fetch runs once or twice; the cached
			// weather source absorbs the rest of the catalog.
			statsBySeason := make(map[domain.Season]*domain.WeatherStats, 2)

			local := make(map[string]*domain.SafetyPrediction, len(dates))
			for _, date := range dates {
				pattern := prefetch.pattern(route.Lat, route.Lon, date)
				season := domain.SeasonOf(date)
				stats, ok := statsBySeason[season]
				if !ok {
					var statsErr error
					stats, statsErr = p.weather.FetchHistoricalStats(gCtx, route.Lat, route.Lon, elev, season)
					if statsErr != nil {
						logger.Warn("historical stats fetch failed, scoring without norms",
							"route_id", route.ID, "error", statsErr)
						stats = nil
					}
					statsBySeason[season] = stats
				}
				prediction := p.engine.ScoreVectorized(route, date, pattern, stats, accidents)
				local[cache.SafetyKey(route.ID, date)] = &prediction
			}

			mu.Lock()
			for key, prediction := range local {
				entries[key] = prediction
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	warmed := 0
	if len(entries) > 0 {
		if p.cache.BulkSetPredictions(ctx, entries, p.cfg.ScoreTTL) {
			warmed = len(entries)
		} else {
			// Degraded cache: the scores were computed but could not be
			// stored, which is indistinguishable from failure for the
			// run's purpose.
			failed += len(entries)
		}
	}

	summary.RoutesProcessed += len(routes)
	summary.TotalWarmed += warmed
	summary.TotalFailed += failed

	p.metrics.ScoresComputed.Add(float64(warmed))
	p.metrics.ScoreFailures.Add(float64(failed))
	p.metrics.BatchDuration.Observe(p.clock.Now().Sub(batchStart).Seconds())
}

// finish closes out a run: duration, metrics, logging, best-effort
// publish.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, summary *protocol.RunSummary, state protocol.RunState, runErr error) (*protocol.RunSummary, error) {
	summary.State = state
	summary.DurationSeconds = p.clock.Now().UTC().Sub(summary.StartedAt).Seconds()
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	p.metrics.RunsCompleted.WithLabelValues(summary.Job, string(state)).Inc()

	logger.Info("precomputation run finished",
		"state", string(state),
		"routes_processed", summary.RoutesProcessed,
		"total_warmed", summary.TotalWarmed,
		"total_failed", summary.TotalFailed,
		"pruned_keys", summary.PrunedKeys,
		"duration_seconds", summary.DurationSeconds,
	)
	p.metrics.RunDuration.Observe(summary.DurationSeconds)

	if p.publisher != nil {
		if err := p.publisher.PublishRunSummary(ctx, summary); err != nil {
			logger.Warn("run summary publish failed", "error", err)
		}
	}
	return summary, runErr
}

// forecastDates returns horizonDays consecutive calendar days starting
// at the run date.
func forecastDates(start time.Time, horizonDays int) []time.Time {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, horizonDays)
	for i := range dates {
		dates[i] = day.AddDate(0, 0, i)
	}
	return dates
}
