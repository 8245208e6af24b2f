package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Weather     WeatherConfig
	Scoring     ScoringConfig
	Pipeline    PipelineConfig
	Warmer      WarmerConfig
	SMTP        SMTPConfig
	MetricsAddr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers  []string
	TopicRun string
}

type WeatherConfig struct {
	ForecastURL  string
	ArchiveURL   string
	ElevationURL string
	Timeout      time.Duration
}

// ScoringConfig carries the calibration constants that get tuned per
// deployment rather than baked into the weighting math.
type ScoringConfig struct {
	NormalizationFactor float64
	ConfidencePivot     float64
	SeasonalBoost       float64
	MaxSearchRadiusKm   float64
	TopContributors     int
}

type PipelineConfig struct {
	HorizonDays     int
	BatchSize       int
	Concurrency     int
	BatchPause      time.Duration
	ProgressEvery   int
	RunTime         string // HH:MM, local time of the nightly sweep
	RunExpiry       time.Duration
	BucketPrecision float64
	ScoreTTL        time.Duration
	SearchRadiusKm  float64
}

type WarmerConfig struct {
	Interval    time.Duration
	TopRoutes   int
	Concurrency int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "safeascent_user"),
			Password: getEnv("DB_PASSWORD", "safeascent_pass"),
			DBName:   getEnv("DB_NAME", "safeascent_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicRun: getEnv("KAFKA_TOPIC_RUNS", "safeascent.precompute.runs"),
		},
		Weather: WeatherConfig{
			ForecastURL:  getEnv("WEATHER_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
			ArchiveURL:   getEnv("WEATHER_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive"),
			ElevationURL: getEnv("ELEVATION_URL", "https://api.open-meteo.com/v1/elevation"),
			Timeout:      getEnvAsDuration("WEATHER_TIMEOUT", 10*time.Second),
		},
		Scoring: ScoringConfig{
			NormalizationFactor: getEnvAsFloat("SCORING_NORMALIZATION_FACTOR", 5.0),
			ConfidencePivot:     getEnvAsFloat("SCORING_CONFIDENCE_PIVOT", 5.0),
			SeasonalBoost:       getEnvAsFloat("SCORING_SEASONAL_BOOST", 1.2),
			MaxSearchRadiusKm:   getEnvAsFloat("SCORING_MAX_SEARCH_RADIUS_KM", 300),
			TopContributors:     getEnvAsInt("SCORING_TOP_CONTRIBUTORS", 10),
		},
		Pipeline: PipelineConfig{
			HorizonDays:     getEnvAsInt("PIPELINE_HORIZON_DAYS", 7),
			BatchSize:       getEnvAsInt("PIPELINE_BATCH_SIZE", 200),
			Concurrency:     getEnvAsInt("PIPELINE_CONCURRENCY", 8),
			BatchPause:      getEnvAsDuration("PIPELINE_BATCH_PAUSE", 250*time.Millisecond),
			ProgressEvery:   getEnvAsInt("PIPELINE_PROGRESS_EVERY", 500),
			RunTime:         getEnv("PIPELINE_RUN_TIME", "02:30"),
			RunExpiry:       getEnvAsDuration("PIPELINE_RUN_EXPIRY", 4*time.Hour),
			BucketPrecision: getEnvAsFloat("PIPELINE_BUCKET_PRECISION", 0.01),
			ScoreTTL:        getEnvAsDuration("PIPELINE_SCORE_TTL", 48*time.Hour),
			SearchRadiusKm:  getEnvAsFloat("PIPELINE_SEARCH_RADIUS_KM", 300),
		},
		Warmer: WarmerConfig{
			Interval:    getEnvAsDuration("WARMER_INTERVAL", 6*time.Hour),
			TopRoutes:   getEnvAsInt("WARMER_TOP_ROUTES", 200),
			Concurrency: getEnvAsInt("WARMER_CONCURRENCY", 4),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "safeascent@example.com"),
			To:       getEnv("SMTP_TO", "ops@example.com"),
		},
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
