// Package cache is the durable prediction and weather cache. It is
// strictly a latency optimization: every operation degrades to a miss or
// a reported failure when the backing store is unreachable, and no
// caller may depend on it for correctness.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// ScoreTTL is the default lifetime of a cached prediction: long enough
// to survive the gap between the nightly sweep and any on-demand
// refresh, short enough that a dead pipeline cannot serve week-old
// scores.
const ScoreTTL = 48 * time.Hour

// Cache wraps a Store with JSON serialization, degraded-mode handling,
// and the domain key formats.
type Cache struct {
	store    Store
	logger   *slog.Logger
	degraded atomic.Bool
}

// New creates a cache over the given store.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logger}
}

// Degraded reports whether the most recent store operation failed.
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}

func (c *Cache) observe(op string, err error) {
	if err != nil {
		c.degraded.Store(true)
		c.logger.Warn("cache degraded", "op", op, "error", err)
		return
	}
	c.degraded.Store(false)
}

// GetJSON reads a key and unmarshals it into v. Absent keys and store
// failures both report a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	raw, found, err := c.store.Get(ctx, key)
	c.observe("get", err)
	if err != nil || !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON marshals v and writes it under key with the given TTL.
// Returns false on store failure.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return false
	}
	err = c.store.Set(ctx, key, string(raw), ttl)
	c.observe("set", err)
	return err == nil
}

// Delete removes a key. Returns false on store failure.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	_, err := c.store.Delete(ctx, key)
	c.observe("delete", err)
	return err == nil
}

// ClearPattern deletes every key matching a glob pattern and returns the
// number deleted. A store failure yields zero.
func (c *Cache) ClearPattern(ctx context.Context, pattern string) int {
	keys, err := c.store.ScanKeys(ctx, pattern)
	c.observe("scan", err)
	if err != nil || len(keys) == 0 {
		return 0
	}
	deleted, err := c.store.Delete(ctx, keys...)
	c.observe("delete", err)
	if err != nil {
		return 0
	}
	return int(deleted)
}

// GetPrediction reads a cached SafetyPrediction.
func (c *Cache) GetPrediction(ctx context.Context, key string) (*domain.SafetyPrediction, bool) {
	var p domain.SafetyPrediction
	if !c.GetJSON(ctx, key, &p) {
		return nil, false
	}
	return &p, true
}

// SetPrediction caches a SafetyPrediction.
func (c *Cache) SetPrediction(ctx context.Context, key string, p *domain.SafetyPrediction, ttl time.Duration) bool {
	return c.SetJSON(ctx, key, p, ttl)
}

// BulkGetPredictions fetches many predictions in one pipelined round
// trip. Missing and unreadable entries are simply absent from the
// result.
func (c *Cache) BulkGetPredictions(ctx context.Context, keys []string) map[string]*domain.SafetyPrediction {
	raw, err := c.store.BulkGet(ctx, keys)
	c.observe("bulk_get", err)
	result := make(map[string]*domain.SafetyPrediction, len(raw))
	if err != nil {
		return result
	}
	for key, val := range raw {
		var p domain.SafetyPrediction
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			c.logger.Warn("cache entry corrupt, skipping", "key", key, "error", err)
			continue
		}
		result[key] = &p
	}
	return result
}

// BulkSetPredictions writes many predictions with a shared TTL in one
// pipelined round trip. Returns false on store failure.
func (c *Cache) BulkSetPredictions(ctx context.Context, entries map[string]*domain.SafetyPrediction, ttl time.Duration) bool {
	encoded := make(map[string]string, len(entries))
	for key, p := range entries {
		raw, err := json.Marshal(p)
		if err != nil {
			c.logger.Error("cache marshal failed", "key", key, "error", err)
			continue
		}
		encoded[key] = string(raw)
	}
	err := c.store.BulkSet(ctx, encoded, ttl)
	c.observe("bulk_set", err)
	return err == nil
}

// PruneExpiredDates deletes safety keys whose embedded date is not in
// the keep set (the rolling forecast window). TTLs already bound entry
// lifetime; this pass just keeps the keyspace from accumulating
// yesterday's dates between expiries. Returns the number deleted.
func (c *Cache) PruneExpiredDates(ctx context.Context, keep map[string]bool) int {
	keys, err := c.store.ScanKeys(ctx, SafetyKeyPattern)
	c.observe("scan", err)
	if err != nil {
		return 0
	}

	var stale []string
	for _, key := range keys {
		date, ok := DateFromSafetyKey(key)
		if !ok {
			continue
		}
		if !keep[date] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	deleted, err := c.store.Delete(ctx, stale...)
	c.observe("delete", err)
	if err != nil {
		return 0
	}
	c.logger.Info("pruned stale prediction keys", "deleted", deleted)
	return int(deleted)
}
