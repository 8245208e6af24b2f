package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// precomputation pipeline and warmer.
type Metrics struct {
	ScoresComputed prometheus.Counter
	ScoreFailures  prometheus.Counter
	RunsCompleted  *prometheus.CounterVec // labels: job={pipeline,warmer}, outcome={done,failed}
	RunRunning     prometheus.Gauge

	WeatherFetches     prometheus.Counter
	WeatherFetchErrors prometheus.Counter
	BucketReuse        prometheus.Counter

	BatchDuration prometheus.Histogram
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ScoresComputed,
		m.ScoreFailures,
		m.RunsCompleted,
		m.RunRunning,
		m.WeatherFetches,
		m.WeatherFetchErrors,
		m.BucketReuse,
		m.BatchDuration,
		m.RunDuration,
	)
	return m
}

// NewUnregisteredMetrics creates metrics without touching the default
// registry, for tests that build several pipelines in one process.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ScoresComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "scores_computed_total",
			Help:      "Total (route, date) predictions computed and cached.",
		}),
		ScoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "score_failures_total",
			Help:      "Total (route, date) items skipped after an error.",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "runs_completed_total",
			Help:      "Completed precomputation runs by job and outcome.",
		}, []string{"job", "outcome"}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "safeascent",
			Name:      "run_running",
			Help:      "1 while a precomputation run is in flight.",
		}),
		WeatherFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "weather_fetches_total",
			Help:      "Weather API calls issued by batch jobs.",
		}),
		WeatherFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "weather_fetch_errors_total",
			Help:      "Weather API calls that failed.",
		}),
		BucketReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safeascent",
			Name:      "bucket_reuse_total",
			Help:      "Weather lookups served from the run-scoped bucket cache.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "safeascent",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one score-and-cache batch.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "safeascent",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full precomputation run.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
	}
}
