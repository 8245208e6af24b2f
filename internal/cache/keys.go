package cache

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// Key formats are stable, human-decodable composites. Operators grep
// them, the housekeeping pass parses them, and other implementations
// must produce byte-identical keys, so changing a format here is a
// breaking change.

const (
	dateLayout = "2006-01-02"

	// SafetyKeyPattern matches every cached prediction key.
	SafetyKeyPattern = "safety:route:*"
)

// SafetyKey is the cache key for one (route, date) prediction.
func SafetyKey(routeID int64, date time.Time) string {
	return fmt.Sprintf("safety:route:%d:date:%s", routeID, date.Format(dateLayout))
}

// RouteKeyPattern matches every cached prediction for one route,
// whatever the date.
func RouteKeyPattern(routeID int64) string {
	return fmt.Sprintf("safety:route:%d:date:*", routeID)
}

// DateFromSafetyKey extracts the YYYY-MM-DD portion of a safety key.
// Returns false for keys that do not follow the safety format.
func DateFromSafetyKey(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "safety" || parts[1] != "route" || parts[3] != "date" {
		return "", false
	}
	if _, err := time.Parse(dateLayout, parts[4]); err != nil {
		return "", false
	}
	return parts[4], true
}

// WeatherPatternKey is the cache key for a forecast pattern at a
// coordinate bucket. Coordinates round to 2 decimal places (~1 km), the
// same precision the pipeline buckets by, so all routes in a bucket
// share one entry.
func WeatherPatternKey(lat, lon float64, date time.Time) string {
	return fmt.Sprintf("weather:pattern:%.2f:%.2f:%s", lat, lon, date.Format(dateLayout))
}

// WeatherStatsKey is the cache key for historical weather statistics.
// Coordinates round to 1 decimal place and elevation to the nearest
// 100 m; stats vary slowly enough that coarser buckets are fine.
func WeatherStatsKey(lat, lon, elevation float64, season domain.Season) string {
	elev := int(math.Round(elevation/100) * 100)
	return fmt.Sprintf("weather:stats:%.1f:%.1f:%d:%s", lat, lon, elev, season)
}
