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

// Warmer refreshes predictions for a bounded popular-route subset on a
// short cycle, keeping the hottest cache entries fresh between nightly
// sweeps. The subset is small enough that per-route weather fetches are
// fine; the catalog-scale bucketing machinery stays in the Pipeline.
type Warmer struct {
	catalog     RouteCatalog
	accidents   AccidentSource
	weather     weather.Source
	cache       *cache.Cache
	engine      *scoring.Engine
	publisher   RunPublisher // may be nil
	metrics     *observability.Metrics
	logger      *slog.Logger
	clock       clockwork.Clock
	cfg         config.WarmerConfig
	horizonDays int
	radiusKm    float64
	scoreTTL    time.Duration
}

// NewWarmer assembles a cache warmer sharing the pipeline's scoring and
// caching contracts.
func NewWarmer(
	catalog RouteCatalog,
	accidents AccidentSource,
	w weather.Source,
	c *cache.Cache,
	engine *scoring.Engine,
	publisher RunPublisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
	clock clockwork.Clock,
	cfg config.WarmerConfig,
	pipelineCfg config.PipelineConfig,
) *Warmer {
	if cfg.TopRoutes <= 0 {
		cfg.TopRoutes = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	horizon := pipelineCfg.HorizonDays
	if horizon <= 0 {
		horizon = 7
	}
	ttl := pipelineCfg.ScoreTTL
	if ttl <= 0 {
		ttl = cache.ScoreTTL
	}
	return &Warmer{
		catalog:     catalog,
		accidents:   accidents,
		weather:     w,
		cache:       c,
		engine:      engine,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		clock:       clock,
		cfg:         cfg,
		horizonDays: horizon,
		radiusKm:    pipelineCfg.SearchRadiusKm,
		scoreTTL:    ttl,
	}
}

// WarmPopularRoutes recomputes and caches predictions for the popular
// subset across the forecast horizon. Per-route failures are counted,
// never fatal; only a catalog read failure fails the run.
func (w *Warmer) WarmPopularRoutes(ctx context.Context) (*protocol.RunSummary, error) {
	start := w.clock.Now().UTC()
	summary := &protocol.RunSummary{
		RunID:         uuid.NewString(),
		Job:           protocol.JobWarmer,
		DatesPerRoute: w.horizonDays,
		StartedAt:     start,
	}
	logger := w.logger.With("run_id", summary.RunID, "job", summary.Job)

	w.metrics.RunRunning.Set(1)
	defer w.metrics.RunRunning.Set(0)

	routes, err := w.catalog.FetchPopularRoutes(ctx, w.cfg.TopRoutes)
	if err != nil {
		logger.Error("popular route fetch failed", "error", err)
		return w.finish(ctx, logger, summary, protocol.RunStateFailed, err)
	}

	dates := forecastDates(start, w.horizonDays)

	var (
		mu      sync.Mutex
		entries = make(map[string]*domain.SafetyPrediction, len(routes)*len(dates))
		failed  int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)

	for _, route := range routes {
		route := route
		g.Go(func() error {
			radius := w.radiusKm
			accidents, err := w.accidents.FetchAccidents(gCtx, route.Lat, route.Lon, &radius, domain.AccidentFilters{})
			if err != nil {
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
			statsBySeason := make(map[domain.Season]*domain.WeatherStats, 2)

			local := make(map[string]*domain.SafetyPrediction, len(dates))
			for _, date := range dates {
				w.metrics.WeatherFetches.Inc()
				pattern, err := w.weather.FetchCurrentPattern(gCtx, route.Lat, route.Lon, date)
				if err != nil {
					w.metrics.WeatherFetchErrors.Inc()
					pattern = nil
				}
				season := domain.SeasonOf(date)
				stats, ok := statsBySeason[season]
				if !ok {
					var statsErr error
					stats, statsErr = w.weather.FetchHistoricalStats(gCtx, route.Lat, route.Lon, elev, season)
					if statsErr != nil {
						logger.Warn("historical stats fetch failed, scoring without norms",
							"route_id", route.ID, "error", statsErr)
						stats = nil
					}
					statsBySeason[season] = stats
				}
				prediction := w.engine.ScoreVectorized(route, date, pattern, stats, accidents)
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

	if len(entries) > 0 {
		if w.cache.BulkSetPredictions(ctx, entries, w.scoreTTL) {
			summary.TotalWarmed = len(entries)
		} else {
			failed += len(entries)
		}
	}

	summary.RoutesProcessed = len(routes)
	summary.TotalFailed = failed

	w.metrics.ScoresComputed.Add(float64(summary.TotalWarmed))
	w.metrics.ScoreFailures.Add(float64(failed))

	return w.finish(ctx, logger, summary, protocol.RunStateDone, nil)
}

func (w *Warmer) finish(ctx context.Context, logger *slog.Logger, summary *protocol.RunSummary, state protocol.RunState, runErr error) (*protocol.RunSummary, error) {
	summary.State = state
	summary.DurationSeconds = w.clock.Now().UTC().Sub(summary.StartedAt).Seconds()
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	w.metrics.RunsCompleted.WithLabelValues(summary.Job, string(state)).Inc()
	logger.Info("warmer run finished",
		"state", string(state),
		"routes_processed", summary.RoutesProcessed,
		"total_warmed", summary.TotalWarmed,
		"total_failed", summary.TotalFailed,
		"duration_seconds", summary.DurationSeconds,
	)

	if w.publisher != nil {
		if err := w.publisher.PublishRunSummary(ctx, summary); err != nil {
			logger.Warn("run summary publish failed", "error", err)
		}
	}
	return summary, runErr
}
