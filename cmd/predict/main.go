package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/database"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/predictor"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/weather"
	"github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"
)

func main() {
	routeID := flag.String("route", "", "route ID to score (required)")
	dateStr := flag.String("date", "", "planned date as YYYY-MM-DD (default tomorrow)")
	radius := flag.Float64("radius", 0, "accident search radius in km (0 uses the configured maximum)")
	skipCache := flag.Bool("no-cache", false, "force a fresh computation, bypassing the cache")
	days := flag.Int("days", 1, "number of consecutive days to score starting at the planned date")
	refresh := flag.Bool("refresh", false, "drop every cached prediction for the route before scoring")
	flag.Parse()

	if *routeID == "" {
		flag.Usage()
		os.Exit(2)
	}

	plannedDate := time.Now().AddDate(0, 0, 1).UTC().Truncate(24 * time.Hour)
	if *dateStr != "" {
		parsed, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			log.Fatalf("Invalid date %q: %v", *dateStr, err)
		}
		plannedDate = parsed
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	predictionCache := cache.New(cache.NewRedisStore(redisClient), logger)
	source := weather.NewCachedSource(weather.NewClient(cfg.Weather, logger), predictionCache)
	engine := scoring.NewEngine(scoring.FromSettings(cfg.Scoring), clockwork.NewRealClock())

	svc := predictor.New(engine, predictionCache, db, source, logger, cfg.Pipeline.ScoreTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	route, err := db.FetchRouteByID(ctx, *routeID)
	if err != nil {
		log.Fatalf("Failed to load route: %v", err)
	}

	// Resolve missing elevation from terrain data so the elevation
	// weight can participate.
	if route.Elevation == nil {
		elevations := weather.NewElevationClient(cfg.Weather.ElevationURL, cfg.Weather.Timeout, logger)
		if elev, err := elevations.FetchElevation(ctx, route.Lat, route.Lon); err != nil {
			logger.Warn("elevation lookup failed, scoring without elevation", "error", err)
		} else {
			route.Elevation = elev
		}
	}

	opts := predictor.Options{SkipCache: *skipCache}
	if *radius > 0 {
		opts.SearchRadiusKm = radius
	}

	if *refresh {
		dropped := svc.InvalidateRoute(ctx, route.ID)
		logger.Info("invalidated cached predictions", "route_id", route.ID, "dropped", dropped)
	}

	var result any
	if *days > 1 {
		result, err = svc.PredictWindow(ctx, *route, plannedDate, *days, opts)
	} else {
		result, err = svc.PredictSafety(ctx, *route, plannedDate, opts)
	}
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode prediction: %v", err)
	}
	fmt.Println(string(out))
}
