package predictor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/cache"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/scoring"
)

// mapStore is a minimal in-memory cache.Store.
type mapStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]string)}
}

func (s *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.entries[key]
	return val, ok, nil
}

func (s *mapStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *mapStore) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, key := range keys {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *mapStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.entries {
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *mapStore) BulkGet(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, key := range keys {
		if val, ok, _ := s.Get(ctx, key); ok {
			result[key] = val
		}
	}
	return result, nil
}

func (s *mapStore) BulkSet(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// stubAccidents records calls and returns a fixed set or error.
type stubAccidents struct {
	calls     int
	radius    float64
	accidents []domain.AccidentRecord
	err       error
}

func (s *stubAccidents) FetchAccidents(_ context.Context, _, _ float64, radiusKm *float64, _ domain.AccidentFilters) ([]domain.AccidentRecord, error) {
	s.calls++
	if radiusKm != nil {
		s.radius = *radiusKm
	}
	return s.accidents, s.err
}

// stubWeather returns fixed patterns and stats or errors.
type stubWeather struct {
	calls      int
	statsCalls int
	pattern    *domain.WeatherPattern
	stats      *domain.WeatherStats
	err        error
}

func (s *stubWeather) FetchCurrentPattern(context.Context, float64, float64, time.Time) (*domain.WeatherPattern, error) {
	s.calls++
	return s.pattern, s.err
}

func (s *stubWeather) FetchHistoricalStats(context.Context, float64, float64, float64, domain.Season) (*domain.WeatherStats, error) {
	s.statsCalls++
	return s.stats, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoute() domain.Route {
	return domain.Route{ID: 7, Name: "Test Route", Lat: 40.255, Lon: -105.615, RouteType: domain.RouteAlpine}
}

func testAccidents() []domain.AccidentRecord {
	return []domain.AccidentRecord{{
		ID: 1, Lat: 40.26, Lon: -105.61,
		Date:      time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC),
		RouteType: domain.RouteAlpine,
		Severity:  domain.SeverityFatal,
	}}
}

func newTestService(accidents *stubAccidents, w *stubWeather, store *mapStore) *Service {
	return New(
		scoring.NewEngine(scoring.DefaultConfig(), nil),
		cache.New(store, testLogger()),
		accidents,
		w,
		testLogger(),
		time.Hour,
	)
}

func TestPredictSafety_ComputesAndCaches(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	w := &stubWeather{}
	store := newMapStore()
	svc := newTestService(accidents, w, store)

	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	first, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	assert.Greater(t, first.RiskScore, 0.0)
	assert.Equal(t, 1, accidents.calls)

	// The second call is served from the cache.
	second, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, accidents.calls)
	assert.Equal(t, first.RiskScore, second.RiskScore)
}

func TestPredictSafety_SkipCacheRecomputes(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	svc := newTestService(accidents, &stubWeather{}, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	svc.PredictSafety(context.Background(), testRoute(), date, Options{SkipCache: true})

	assert.Equal(t, 2, accidents.calls)
}

func TestPredictSafety_InvalidRadius(t *testing.T) {
	svc := newTestService(&stubAccidents{}, &stubWeather{}, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	bad := -5.0
	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{SearchRadiusKm: &bad})
	assert.Error(t, err)

	zero := 0.0
	_, err = svc.PredictSafety(context.Background(), testRoute(), date, Options{SearchRadiusKm: &zero})
	assert.Error(t, err)
}

func TestPredictSafety_RadiusOverridePropagates(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	svc := newTestService(accidents, &stubWeather{}, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	custom := 42.0
	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{SearchRadiusKm: &custom, SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, 42.0, accidents.radius)
}

func TestPredictSafety_AccidentFetchFailureIsError(t *testing.T) {
	accidents := &stubAccidents{err: errors.New("archive down")}
	svc := newTestService(accidents, &stubWeather{}, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not compute prediction")
}

func TestPredictSafety_WeatherFailureDegrades(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	w := &stubWeather{err: errors.New("provider timeout")}
	svc := newTestService(accidents, w, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	prediction, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err, "weather failure must not fail the prediction")
	assert.Greater(t, prediction.RiskScore, 0.0)

	// Neutral weather weight on the single contributor.
	require.Len(t, prediction.TopContributors, 1)
	assert.Equal(t, 1.0, prediction.TopContributors[0].Weather)
}

func TestPredictSafety_WeatherOverrideBypassesCache(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	w := &stubWeather{}
	store := newMapStore()
	svc := newTestService(accidents, w, store)
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	override := &domain.WeatherPattern{
		TempC:        []float64{2},
		PrecipMM:     []float64{15},
		WindKPH:      []float64{45},
		VisibilityKM: []float64{1},
		CloudPct:     []float64{95},
		TempRanges:   []domain.TempRange{{Min: -2, Avg: 2, Max: 5}},
	}

	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{WeatherOverride: override})
	require.NoError(t, err)

	// Nothing was fetched and nothing was written to the cache.
	assert.Zero(t, w.calls)
	assert.Empty(t, store.entries)
}

func TestPredictSafety_RadiusOverrideBypassesCache(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	store := newMapStore()
	svc := newTestService(accidents, &stubWeather{}, store)
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	// Warm the canonical full-radius entry.
	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, accidents.calls)
	require.Len(t, store.entries, 1)

	// A narrowed request must recompute rather than read the canonical
	// entry, and must not write over it.
	narrow := 25.0
	_, err = svc.PredictSafety(context.Background(), testRoute(), date, Options{SearchRadiusKm: &narrow})
	require.NoError(t, err)
	assert.Equal(t, 2, accidents.calls)
	assert.Equal(t, 25.0, accidents.radius)
	assert.Len(t, store.entries, 1)

	// The canonical entry still serves default requests.
	_, err = svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, accidents.calls)
}

func TestPredictSafety_SeasonalNormsBackUpMissingPatterns(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	w := &stubWeather{
		pattern: &domain.WeatherPattern{
			TempC:        []float64{14},
			PrecipMM:     []float64{3},
			WindKPH:      []float64{12},
			VisibilityKM: []float64{10},
			CloudPct:     []float64{40},
			TempRanges:   []domain.TempRange{{Min: 9, Avg: 14, Max: 19}},
		},
		stats: &domain.WeatherStats{AvgTempC: 14, AvgPrecipMM: 3, AvgWindKPH: 12},
	}
	svc := newTestService(accidents, w, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	prediction, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, w.statsCalls)

	// The accident has no recorded pattern; the norms stand in for it.
	require.Len(t, prediction.TopContributors, 1)
	assert.InDelta(t, 2.0, prediction.TopContributors[0].Weather, 1e-9)
}

func TestPredictSafety_NoForecastSkipsNorms(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	w := &stubWeather{}
	svc := newTestService(accidents, w, newMapStore())
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.PredictSafety(context.Background(), testRoute(), date, Options{})
	require.NoError(t, err)
	assert.Zero(t, w.statsCalls)
}

func TestPredictWindow_BulkServesCachedComputesMisses(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	store := newMapStore()
	svc := newTestService(accidents, &stubWeather{}, store)
	start := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	// Pre-warm the first day only.
	_, err := svc.PredictSafety(context.Background(), testRoute(), start, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, accidents.calls)

	window, err := svc.PredictWindow(context.Background(), testRoute(), start, 3, Options{})
	require.NoError(t, err)

	require.Len(t, window, 3)
	for _, day := range []string{"2026-07-15", "2026-07-16", "2026-07-17"} {
		require.Contains(t, window, day)
		assert.Greater(t, window[day].RiskScore, 0.0)
	}

	// Only the two cold days were computed, and they are cached now.
	assert.Equal(t, 3, accidents.calls)
	assert.Len(t, store.entries, 3)
}

func TestPredictWindow_InvalidDays(t *testing.T) {
	svc := newTestService(&stubAccidents{}, &stubWeather{}, newMapStore())
	start := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.PredictWindow(context.Background(), testRoute(), start, 0, Options{})
	assert.Error(t, err)
}

func TestInvalidateRoute(t *testing.T) {
	accidents := &stubAccidents{accidents: testAccidents()}
	store := newMapStore()
	svc := newTestService(accidents, &stubWeather{}, store)
	start := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.PredictWindow(context.Background(), testRoute(), start, 2, Options{})
	require.NoError(t, err)

	other := testRoute()
	other.ID = 8
	_, err = svc.PredictSafety(context.Background(), other, start, Options{})
	require.NoError(t, err)
	require.Len(t, store.entries, 3)

	dropped := svc.InvalidateRoute(context.Background(), testRoute().ID)
	assert.Equal(t, 2, dropped)
	require.Len(t, store.entries, 1)

	// The untouched route keeps its entry.
	_, err = svc.PredictSafety(context.Background(), other, start, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, accidents.calls)
}
