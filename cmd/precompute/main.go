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
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/schedule"
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

	fmt.Println("Starting Precomputation Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if count, err := db.CountRoutesWithCoordinates(context.Background()); err == nil {
		fmt.Printf("Route catalog: %d routes with coordinates\n", count)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	predictionCache := cache.New(cache.NewRedisStore(redisClient), logger)
	fmt.Println("Prediction cache initialized")

	// Ensure the run topic exists (best effort; brokers may auto-create)
	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicRun, 1, 1); err != nil {
		fmt.Printf("Note: could not create topic %s: %v\n", cfg.Kafka.TopicRun, err)
	}

	// Create Kafka producer for run summaries
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRun)
	defer producer.Close()
	fmt.Println("Kafka producer initialized")

	metrics := observability.NewMetrics()
	engine := scoring.NewEngine(scoring.FromSettings(cfg.Scoring), clockwork.NewRealClock())

	source := weather.NewCachedSource(weather.NewClient(cfg.Weather, logger), predictionCache)

	pipeline := precompute.NewPipeline(
		db, db, source, predictionCache, engine,
		producer, metrics, logger, clockwork.NewRealClock(), cfg.Pipeline,
	)

	// Create schedule manager
	manager := schedule.NewManager(2, clockwork.NewRealClock())
	manager.Start()
	defer manager.Stop()
	fmt.Println("Schedule manager started")

	scheduleNightlyRun(manager, pipeline, cfg.Pipeline, logger)

	// Expose Prometheus metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	fmt.Println("\n✓ Precomputation Service is running")
	fmt.Printf("✓ Nightly sweep at %s, metrics on %s\n", cfg.Pipeline.RunTime, cfg.MetricsAddr)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

func scheduleNightlyRun(manager *schedule.Manager, pipeline *precompute.Pipeline, cfg config.PipelineConfig, logger *slog.Logger) {
	taskID := "nightly-precompute"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun, err := schedule.NextDailyRun(time.Now(), cfg.RunTime)
		if err != nil {
			log.Fatalf("Failed to calculate nightly run time: %v", err)
		}
		fmt.Printf("Next precomputation run scheduled for: %s\n", nextRun.Format("2006-01-02 15:04:05"))

		callback := func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RunExpiry)
			defer cancel()

			if _, err := pipeline.Run(ctx, cfg.HorizonDays); err != nil {
				logger.Error("precomputation run failed", "error", err)
			}

			// Schedule next run
			scheduleNext()
		}

		if err := manager.Schedule(taskID, nextRun, cfg.RunExpiry, callback); err != nil {
			logger.Error("failed to schedule run", "error", err)
		}
	}

	scheduleNext()
}
