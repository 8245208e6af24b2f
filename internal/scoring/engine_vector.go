package scoring

import (
	"math"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// ScoreVectorized is the column-oriented twin of Score: each weight
// factor is computed in one pass over all accidents before the factors
// are multiplied together. It exists for the batch pipeline, where the
// per-factor passes keep the hot loops branch-light and cache-friendly.
//
// Correctness contract: for any input, the risk score must agree with
// Score within 0.1 on the 0-100 scale (engine_test.go enforces this).
// Change the two together or delete this one.
func (e *Engine) ScoreVectorized(route domain.Route, date time.Time, currentWeather *domain.WeatherPattern, stats *domain.WeatherStats, accidents []domain.AccidentRecord) domain.SafetyPrediction {
	n := len(accidents)
	if n == 0 {
		return e.assemble(route, date, 0, nil)
	}

	spatial := make([]float64, n)

	// Spatial column.
	h := e.cfg.spatialBandwidth(route.RouteType)
	inv2h2 := 1 / (2 * h * h)
	for i, acc := range accidents {
		d := HaversineKm(route.Lat, route.Lon, acc.Lat, acc.Lon)
		spatial[i] = math.Exp(-d * d * inv2h2)
	}

	// Temporal column.
	lambda := e.cfg.temporalLambda(route.RouteType)
	logLambda := math.Log(lambda)
	currentSeason := domain.SeasonOf(date)
	temporal := make([]float64, n)
	for i, acc := range accidents {
		days := math.Abs(date.Sub(acc.Date).Hours() / 24)
		w := math.Exp(days * logLambda)
		if domain.SeasonOf(acc.Date) == currentSeason {
			w *= e.cfg.SeasonalBoost
		}
		temporal[i] = w
	}

	// Elevation column.
	elevation := make([]float64, n)
	decay := e.cfg.elevationDecay(route.RouteType)
	for i, acc := range accidents {
		elevation[i] = 1.0
		if route.Elevation != nil && acc.Elevation != nil {
			if diff := *acc.Elevation - *route.Elevation; diff > 0 {
				elevation[i] = math.Exp(-(diff / decay) * (diff / decay))
			}
		}
	}

	// Grade column.
	grade := make([]float64, n)
	gb := e.cfg.GradeBandwidth
	for i, acc := range accidents {
		grade[i] = 1.0
		if route.Grade != nil && acc.Grade != nil {
			diff := *acc.Grade - *route.Grade
			grade[i] = math.Exp(-(diff / gb) * (diff / gb))
		}
	}

	// Weather, route-type, and severity columns.
	weather := make([]float64, n)
	routeType := make([]float64, n)
	severity := make([]float64, n)
	for i, acc := range accidents {
		weather[i] = weatherWeight(currentWeather, acc.Weather, stats)
		routeType[i] = e.cfg.RouteTypeWeight(route.RouteType, acc.RouteType)
		severity[i] = e.cfg.SeverityWeight(acc.Severity)
	}

	breakdowns := make([]domain.WeightBreakdown, n)
	var raw float64
	for i, acc := range accidents {
		total := spatial[i] * temporal[i] * elevation[i] * weather[i] * routeType[i] * grade[i] * severity[i]
		breakdowns[i] = domain.WeightBreakdown{
			AccidentID:     acc.ID,
			Spatial:        spatial[i],
			Temporal:       temporal[i],
			Elevation:      elevation[i],
			Weather:        weather[i],
			RouteType:      routeType[i],
			Grade:          grade[i],
			Severity:       severity[i],
			TotalInfluence: total,
		}
		raw += total
	}

	return e.assemble(route, date, raw, breakdowns)
}
