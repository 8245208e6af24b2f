package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// fakeStore is an in-memory Store with real TTL semantics driven by a
// controllable clock.
type fakeStore struct {
	clock   clockwork.Clock
	entries map[string]fakeEntry
}

type fakeEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func newFakeStore(clock clockwork.Clock) *fakeStore {
	return &fakeStore{clock: clock, entries: make(map[string]fakeEntry)}
}

func (s *fakeStore) live(key string) (fakeEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return fakeEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return fakeEntry{}, false
	}
	return e, true
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := fakeEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *fakeStore) Delete(_ context.Context, keys ...string) (int64, error) {
	var deleted int64
	for _, key := range keys {
		if _, ok := s.live(key); ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for key := range s.entries {
		if _, ok := s.live(key); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeStore) BulkGet(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, key := range keys {
		if val, ok, _ := s.Get(ctx, key); ok {
			result[key] = val
		}
	}
	return result, nil
}

func (s *fakeStore) BulkSet(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// failStore errors on every operation, standing in for an unreachable
// Redis.
type failStore struct{}

var errStoreDown = errors.New("connection refused")

func (failStore) Get(context.Context, string) (string, bool, error) { return "", false, errStoreDown }
func (failStore) Set(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (failStore) Delete(context.Context, ...string) (int64, error) { return 0, errStoreDown }
func (failStore) ScanKeys(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}
func (failStore) BulkGet(context.Context, []string) (map[string]string, error) {
	return nil, errStoreDown
}
func (failStore) BulkSet(context.Context, map[string]string, time.Duration) error {
	return errStoreDown
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePrediction(score float64) *domain.SafetyPrediction {
	return &domain.SafetyPrediction{
		RiskScore:                score,
		Confidence:               0.5,
		NumContributingAccidents: 5,
		GeneratedAt:              time.Date(2026, 7, 14, 2, 30, 0, 0, time.UTC),
	}
}

func TestCache_SetGetPrediction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()

	key := SafetyKey(42, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, c.SetPrediction(ctx, key, samplePrediction(61.5), ScoreTTL))

	got, found := c.GetPrediction(ctx, key)
	require.True(t, found)
	assert.Equal(t, 61.5, got.RiskScore)
	assert.Equal(t, 5, got.NumContributingAccidents)
	assert.False(t, c.Degraded())
}

func TestCache_EntryExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()

	key := SafetyKey(42, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, c.SetPrediction(ctx, key, samplePrediction(61.5), ScoreTTL))

	clock.Advance(ScoreTTL - time.Minute)
	_, found := c.GetPrediction(ctx, key)
	assert.True(t, found, "entry must survive inside its TTL")

	clock.Advance(2 * time.Minute)
	_, found = c.GetPrediction(ctx, key)
	assert.False(t, found, "entry must be gone after its TTL")
}

func TestCache_Delete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()

	key := SafetyKey(7, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	c.SetPrediction(ctx, key, samplePrediction(10), ScoreTTL)

	assert.True(t, c.Delete(ctx, key))
	_, found := c.GetPrediction(ctx, key)
	assert.False(t, found)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore(clock)
	c := New(store, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "safety:route:1:date:2026-07-15", "{not json", 0))

	_, found := c.GetPrediction(ctx, "safety:route:1:date:2026-07-15")
	assert.False(t, found)
	assert.False(t, c.Degraded(), "corruption is a miss, not an outage")
}

func TestCache_DegradedMode(t *testing.T) {
	c := New(failStore{}, testLogger())
	ctx := context.Background()

	key := SafetyKey(1, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))

	_, found := c.GetPrediction(ctx, key)
	assert.False(t, found)
	assert.True(t, c.Degraded())

	assert.False(t, c.SetPrediction(ctx, key, samplePrediction(50), ScoreTTL))
	assert.False(t, c.Delete(ctx, key))
	assert.Zero(t, c.ClearPattern(ctx, SafetyKeyPattern))
	assert.Empty(t, c.BulkGetPredictions(ctx, []string{key}))
	assert.False(t, c.BulkSetPredictions(ctx, map[string]*domain.SafetyPrediction{key: samplePrediction(50)}, ScoreTTL))
	assert.True(t, c.Degraded())
}

func TestCache_DegradedFlagRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	good := newFakeStore(clock)
	c := New(failStore{}, testLogger())
	ctx := context.Background()

	c.GetPrediction(ctx, "safety:route:1:date:2026-07-15")
	require.True(t, c.Degraded())

	// Swap in a healthy store; the next successful operation clears the
	// flag.
	c.store = good
	c.GetPrediction(ctx, "safety:route:1:date:2026-07-15")
	assert.False(t, c.Degraded())
}

func TestCache_ClearPattern(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	for id := int64(1); id <= 4; id++ {
		c.SetPrediction(ctx, SafetyKey(id, date), samplePrediction(float64(id)), ScoreTTL)
	}
	c.SetJSON(ctx, WeatherPatternKey(40.25, -105.61, date), &domain.WeatherPattern{}, time.Hour)

	deleted := c.ClearPattern(ctx, SafetyKeyPattern)
	assert.Equal(t, 4, deleted)

	// The weather entry survives.
	var p domain.WeatherPattern
	assert.True(t, c.GetJSON(ctx, WeatherPatternKey(40.25, -105.61, date), &p))
}

func TestCache_BulkRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	entries := map[string]*domain.SafetyPrediction{
		SafetyKey(1, date): samplePrediction(10),
		SafetyKey(2, date): samplePrediction(20),
		SafetyKey(3, date): samplePrediction(30),
	}
	require.True(t, c.BulkSetPredictions(ctx, entries, ScoreTTL))

	keys := []string{
		SafetyKey(1, date), SafetyKey(2, date), SafetyKey(3, date),
		SafetyKey(99, date), // never written
	}
	got := c.BulkGetPredictions(ctx, keys)
	require.Len(t, got, 3)
	assert.Equal(t, 20.0, got[SafetyKey(2, date)].RiskScore)
	_, ok := got[SafetyKey(99, date)]
	assert.False(t, ok)
}

func TestCache_PruneExpiredDates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(newFakeStore(clock), testLogger())
	ctx := context.Background()

	today := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	c.SetPrediction(ctx, SafetyKey(1, yesterday), samplePrediction(1), ScoreTTL)
	c.SetPrediction(ctx, SafetyKey(1, today), samplePrediction(2), ScoreTTL)
	c.SetPrediction(ctx, SafetyKey(1, tomorrow), samplePrediction(3), ScoreTTL)
	c.SetPrediction(ctx, SafetyKey(2, yesterday), samplePrediction(4), ScoreTTL)

	keep := map[string]bool{
		today.Format("2006-01-02"):    true,
		tomorrow.Format("2006-01-02"): true,
	}

	pruned := c.PruneExpiredDates(ctx, keep)
	assert.Equal(t, 2, pruned)

	_, found := c.GetPrediction(ctx, SafetyKey(1, yesterday))
	assert.False(t, found)
	_, found = c.GetPrediction(ctx, SafetyKey(1, today))
	assert.True(t, found)
	_, found = c.GetPrediction(ctx, SafetyKey(1, tomorrow))
	assert.True(t, found)
}
