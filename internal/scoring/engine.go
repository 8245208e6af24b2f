package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// Engine turns a route, a target date, and a set of candidate accidents
// into a SafetyPrediction. Apart from stamping GeneratedAt from the
// injected clock it is a pure function of its inputs: fetching
// accidents and weather is the caller's concern, and missing optional
// inputs degrade to neutral weights instead of erroring.
type Engine struct {
	cfg   Config
	clock clockwork.Clock
}

// NewEngine creates an engine with the given calibration tables. A nil
// clock defaults to the wall clock.
func NewEngine(cfg Config, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{cfg: cfg, clock: clock}
}

// Config returns the engine's calibration tables.
func (e *Engine) Config() Config {
	return e.cfg
}

// Score computes the risk prediction for one (route, date) pair.
// currentWeather, stats, and each accident's recorded pattern may all be
// nil. An empty accident list yields a zero score at minimum confidence.
func (e *Engine) Score(route domain.Route, date time.Time, currentWeather *domain.WeatherPattern, stats *domain.WeatherStats, accidents []domain.AccidentRecord) domain.SafetyPrediction {
	breakdowns := make([]domain.WeightBreakdown, 0, len(accidents))
	var raw float64

	for _, acc := range accidents {
		b := e.weigh(route, date, currentWeather, stats, acc)
		raw += b.TotalInfluence
		breakdowns = append(breakdowns, b)
	}

	return e.assemble(route, date, raw, breakdowns)
}

// weigh computes the full weight breakdown for a single accident.
func (e *Engine) weigh(route domain.Route, date time.Time, currentWeather *domain.WeatherPattern, stats *domain.WeatherStats, acc domain.AccidentRecord) domain.WeightBreakdown {
	b := domain.WeightBreakdown{
		AccidentID: acc.ID,
		Spatial:    e.cfg.SpatialWeight(route.Lat, route.Lon, acc.Lat, acc.Lon, route.RouteType),
		Temporal:   e.cfg.TemporalWeight(date, acc.Date, route.RouteType, true),
		Elevation:  e.cfg.ElevationWeight(route.Elevation, acc.Elevation, route.RouteType),
		Weather:    weatherWeight(currentWeather, acc.Weather, stats),
		RouteType:  e.cfg.RouteTypeWeight(route.RouteType, acc.RouteType),
		Grade:      e.cfg.GradeWeight(route.Grade, acc.Grade),
		Severity:   e.cfg.SeverityWeight(acc.Severity),
	}
	// A product, not a sum: any near-zero factor suppresses the whole
	// contribution, so proximity alone cannot resurrect an irrelevant
	// accident.
	b.TotalInfluence = b.Spatial * b.Temporal * b.Elevation * b.Weather * b.RouteType * b.Grade * b.Severity
	return b
}

// weatherWeight resolves the weather factor: the recorded accident
// pattern when there is one, the seasonal-norm fallback when there is
// not, neutral when neither side has data.
func weatherWeight(current, historical *domain.WeatherPattern, stats *domain.WeatherStats) float64 {
	if historical.Valid() {
		return SimilarityWeight(current, historical)
	}
	return StatsSimilarityWeight(current, stats)
}

// assemble normalizes the raw influence sum and builds the prediction.
func (e *Engine) assemble(route domain.Route, date time.Time, raw float64, breakdowns []domain.WeightBreakdown) domain.SafetyPrediction {
	return domain.SafetyPrediction{
		RiskScore:                e.cfg.NormalizeRiskScore(raw),
		Confidence:               e.cfg.Confidence(len(breakdowns)),
		NumContributingAccidents: len(breakdowns),
		TopContributors:          e.topContributors(breakdowns),
		Metadata: map[string]string{
			"route_type":           string(route.RouteType),
			"search_date":          date.Format("2006-01-02"),
			"normalization_factor": fmt.Sprintf("%g", e.cfg.NormalizationFactor),
			"total_influence":      fmt.Sprintf("%.6f", raw),
		},
		GeneratedAt: e.clock.Now().UTC(),
	}
}

// NormalizeRiskScore maps a raw influence sum in [0, inf) onto the 0-100
// scale with a saturating transform. Zero maps to zero; the configured
// NormalizationFactor is the half-saturation point.
func (c Config) NormalizeRiskScore(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return 100 * raw / (raw + c.NormalizationFactor)
}

// Confidence saturates with the number of contributing accidents:
// n/(n+pivot), so more data always means more confidence but never
// reaches 1.0.
func (c Config) Confidence(numAccidents int) float64 {
	if numAccidents <= 0 {
		return 0
	}
	n := float64(numAccidents)
	return n / (n + c.ConfidencePivot)
}

// topContributors returns the N highest-influence breakdowns in
// descending order. Ties break on ascending accident ID so results are
// deterministic regardless of input order.
func (e *Engine) topContributors(breakdowns []domain.WeightBreakdown) []domain.WeightBreakdown {
	n := e.cfg.TopContributors
	if n <= 0 || n > MaxTopContributors {
		n = MaxTopContributors
	}

	sorted := make([]domain.WeightBreakdown, len(breakdowns))
	copy(sorted, breakdowns)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalInfluence != sorted[j].TotalInfluence {
			return sorted[i].TotalInfluence > sorted[j].TotalInfluence
		}
		return sorted[i].AccidentID < sorted[j].AccidentID
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
