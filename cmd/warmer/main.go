package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/database"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/observability"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/precompute"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/queue"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/weather"
	"github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	fmt.Println("Starting Cache Warmer Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	predictionCache := cache.New(cache.NewRedisStore(redisClient), logger)
	fmt.Println("Prediction cache initialized")

	// Create Kafka producer for run summaries
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRun)
	defer producer.Close()
	fmt.Println("Kafka producer initialized")

	metrics := observability.NewMetrics()
	engine := scoring.NewEngine(scoring.FromSettings(cfg.Scoring), clockwork.NewRealClock())

	source := weather.NewCachedSource(weather.NewClient(cfg.Weather, logger), predictionCache)

	warmer := precompute.NewWarmer(
		db, db, source, predictionCache, engine,
		producer, metrics, logger, clockwork.NewRealClock(), cfg.Warmer, cfg.Pipeline,
	)

	// Expose Prometheus metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm once at startup, then on every tick
	go func() {
		runOnce(ctx, warmer, logger)

		ticker := time.NewTicker(cfg.Warmer.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce(ctx, warmer, logger)
			}
		}
	}()

	fmt.Println("\n✓ Cache Warmer Service is running")
	fmt.Printf("✓ Warming top %d routes every %s\n", cfg.Warmer.TopRoutes, cfg.Warmer.Interval)
	fmt.Println("✓ Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
}

func runOnce(ctx context.Context, warmer *precompute.Warmer, logger *slog.Logger) {
	if _, err := warmer.WarmPopularRoutes(ctx); err != nil {
		logger.Error("warming pass failed", "error", err)
	}
}
