// Package domain holds the core data model for climbing risk scoring:
// accident records, routes, weather patterns, and the closed route-type
// and severity enumerations. Raw strings from the data layer are
// normalized into these enums at the boundary; nothing downstream
// pattern-matches on raw strings.
package domain

import (
	"strings"
	"time"
)

// RouteType classifies a climbing route or accident.
type RouteType string

const (
	RouteAlpine  RouteType = "alpine"
	RouteIce     RouteType = "ice"
	RouteMixed   RouteType = "mixed"
	RouteTrad    RouteType = "trad"
	RouteSport   RouteType = "sport"
	RouteAid     RouteType = "aid"
	RouteBoulder RouteType = "boulder"
	RouteDefault RouteType = "default"
)

// RouteTypes lists every known route type, excluding the default.
var RouteTypes = []RouteType{
	RouteAlpine, RouteIce, RouteMixed, RouteTrad, RouteSport, RouteAid, RouteBoulder,
}

// ParseRouteType normalizes a raw route-type string. Unrecognized values
// map to RouteDefault rather than erroring; classification noise is
// expected in the accident catalog.
func ParseRouteType(s string) RouteType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alpine", "alpine climbing", "mountaineering":
		return RouteAlpine
	case "ice", "ice climbing", "waterfall ice":
		return RouteIce
	case "mixed", "mixed climbing":
		return RouteMixed
	case "trad", "traditional", "traditional climbing":
		return RouteTrad
	case "sport", "sport climbing":
		return RouteSport
	case "aid", "aid climbing", "big wall", "bigwall":
		return RouteAid
	case "boulder", "bouldering":
		return RouteBoulder
	default:
		return RouteDefault
	}
}

// Severity classifies an accident outcome.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeveritySerious Severity = "serious"
	SeverityMinor   Severity = "minor"
	SeverityUnknown Severity = "unknown"
)

// ParseSeverity normalizes a raw severity string. Unrecognized values
// map to SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal", "fatality", "death", "died":
		return SeverityFatal
	case "serious", "severe", "major", "critical":
		return SeveritySerious
	case "minor", "moderate", "injury", "injured":
		return SeverityMinor
	default:
		return SeverityUnknown
	}
}

// Season is one of the four fixed 3-month seasons.
type Season string

const (
	SeasonWinter Season = "winter" // Dec, Jan, Feb
	SeasonSpring Season = "spring" // Mar, Apr, May
	SeasonSummer Season = "summer" // Jun, Jul, Aug
	SeasonFall   Season = "fall"   // Sep, Oct, Nov
)

// SeasonOf returns the season for a date. Pure function of the month.
func SeasonOf(t time.Time) Season {
	switch t.Month() {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonFall
	}
}

// AccidentRecord is one historical accident. Records are read-only
// inputs owned by the data layer; the scoring core never mutates them.
// Elevation and Weather are optional and degrade to neutral weights when
// absent. Date is required for temporal weighting.
type AccidentRecord struct {
	ID        int64
	Lat       float64
	Lon       float64
	Elevation *float64 // meters
	Grade     *float64 // numeric difficulty, see Route.Grade
	Date      time.Time
	RouteType RouteType
	Severity  Severity
	Weather   *WeatherPattern
}

// AccidentFilters narrows a candidate accident fetch. Zero values mean
// no filtering on that dimension.
type AccidentFilters struct {
	RouteTypes []RouteType
	Since      *time.Time
}

// Route is a climbing route from the catalog.
type Route struct {
	ID        int64
	Name      string
	Lat       float64
	Lon       float64
	Elevation *float64 // meters

	// Grade is the numeric difficulty on the catalog's converted scale
	// (YDS 5.9 -> 9.0, 5.10a -> 10.0, and so on; the import scripts do
	// the conversion). Optional; missing grades weigh neutrally.
	Grade *float64

	RouteType  RouteType
	Popularity int // fixed ordering used by the cache warmer
}

// TempRange is one day's minimum, average, and maximum temperature.
type TempRange struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// WeatherPattern is a 7-day window of conditions ending at the reference
// date, ordered oldest to newest. The same shape describes both the
// forecast around a planned date and the conditions recorded at an
// accident. All slices must have the same length.
type WeatherPattern struct {
	TempC        []float64   `json:"temp_c"`
	PrecipMM     []float64   `json:"precip_mm"`
	WindKPH      []float64   `json:"wind_kph"`
	VisibilityKM []float64   `json:"visibility_km"`
	CloudPct     []float64   `json:"cloud_pct"`
	TempRanges   []TempRange `json:"temp_ranges"`
}

// Days returns the number of days in the pattern.
func (w *WeatherPattern) Days() int {
	if w == nil {
		return 0
	}
	return len(w.TempC)
}

// Valid reports whether all channel slices are non-empty and of equal
// length.
func (w *WeatherPattern) Valid() bool {
	if w == nil || len(w.TempC) == 0 {
		return false
	}
	n := len(w.TempC)
	return len(w.PrecipMM) == n &&
		len(w.WindKPH) == n &&
		len(w.VisibilityKM) == n &&
		len(w.CloudPct) == n &&
		len(w.TempRanges) == n
}

// WeatherStats is an aggregate of historical conditions for a location
// and season, used as scoring context when a full pattern is missing.
type WeatherStats struct {
	AvgTempC    float64 `json:"avg_temp_c"`
	AvgPrecipMM float64 `json:"avg_precip_mm"`
	AvgWindKPH  float64 `json:"avg_wind_kph"`
	StormDays   int     `json:"storm_days"`
}

// WeightBreakdown records each weight factor computed for one accident
// against one query, and their product. Breakdowns live for the duration
// of a single prediction; only the top contributors are retained on the
// result.
type WeightBreakdown struct {
	AccidentID     int64   `json:"accident_id"`
	Spatial        float64 `json:"spatial"`
	Temporal       float64 `json:"temporal"`
	Elevation      float64 `json:"elevation"`
	Weather        float64 `json:"weather"`
	RouteType      float64 `json:"route_type"`
	Grade          float64 `json:"grade"`
	Severity       float64 `json:"severity"`
	TotalInfluence float64 `json:"total_influence"`
}

// SafetyPrediction is the result of one scoring call.
type SafetyPrediction struct {
	RiskScore                float64           `json:"risk_score"` // 0-100
	Confidence               float64           `json:"confidence"` // 0-1
	NumContributingAccidents int               `json:"num_contributing_accidents"`
	TopContributors          []WeightBreakdown `json:"top_contributors"`
	Metadata                 map[string]string `json:"metadata"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
