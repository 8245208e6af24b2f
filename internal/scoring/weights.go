// Package scoring implements the multi-factor weighting model and the
// engine that aggregates per-accident influences into a 0-100 risk
// score. Every weight function is pure and total: out-of-domain or
// missing inputs resolve to a documented neutral value, never an error.
package scoring

import (
	"math"
	"time"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// earthRadiusKm is the mean Earth radius used for great-circle distance.
const earthRadiusKm = 6371.0

// Config holds the calibration tables for the weighting model. Build one
// at startup (DefaultConfig, optionally overridden from configuration)
// and treat it as immutable; backtests swap tables without code changes.
type Config struct {
	// SpatialBandwidthKm is the Gaussian kernel bandwidth per planning
	// route type. Wide-ranging styles (alpine) look further than
	// crag-bound ones (sport, boulder).
	SpatialBandwidthKm map[domain.RouteType]float64

	// TemporalLambda is the per-day exponential decay base per planning
	// route type. Closer to 1.0 means longer memory.
	TemporalLambda map[domain.RouteType]float64

	// SeasonalBoost multiplies the temporal weight when the planned date
	// and the accident date fall in the same season.
	SeasonalBoost float64

	// ElevationDecayM is the Gaussian decay constant, in meters, applied
	// to accidents above the route elevation.
	ElevationDecayM map[domain.RouteType]float64

	// RouteTypeMatrix maps (planning type, accident type) to a relevance
	// weight. The matrix is deliberately asymmetric: sport and trad
	// accidents under bad conditions are early warnings for alpine
	// planning, while alpine accidents say little about a sport crag.
	RouteTypeMatrix map[domain.RouteType]map[domain.RouteType]float64

	// DefaultRouteTypeWeight is used for pairs absent from the matrix.
	DefaultRouteTypeWeight float64

	// GradeBandwidth is the Gaussian decay constant, in grade points on
	// the catalog's numeric scale, for the difficulty gap between the
	// planned route and an accident's route.
	GradeBandwidth float64

	// SeverityBoost is a small linear multiplier per outcome severity,
	// kept subtle so one catastrophic accident cannot dominate.
	SeverityBoost map[domain.Severity]float64

	// MaxSearchRadiusKm bounds the candidate accident fetch. It never
	// zeroes a weight; the spatial kernel decays without cutoff.
	MaxSearchRadiusKm float64

	// NormalizationFactor is the half-saturation constant of the
	// raw-sum to risk-score transform.
	NormalizationFactor float64

	// ConfidencePivot is the accident count at which confidence reaches
	// one half.
	ConfidencePivot float64

	// TopContributors is the default number of breakdown entries kept on
	// a prediction. Hard-capped at MaxTopContributors.
	TopContributors int
}

// MaxTopContributors caps the contributor list regardless of
// configuration.
const MaxTopContributors = 50

// DefaultConfig returns the hand-tuned calibration tables.
func DefaultConfig() Config {
	return Config{
		SpatialBandwidthKm: map[domain.RouteType]float64{
			domain.RouteAlpine:  40,
			domain.RouteIce:     25,
			domain.RouteMixed:   30,
			domain.RouteTrad:    15,
			domain.RouteSport:   10,
			domain.RouteAid:     20,
			domain.RouteBoulder: 5,
			domain.RouteDefault: 20,
		},
		TemporalLambda: map[domain.RouteType]float64{
			domain.RouteAlpine:  0.9995,
			domain.RouteIce:     0.999,
			domain.RouteMixed:   0.999,
			domain.RouteTrad:    0.998,
			domain.RouteSport:   0.997,
			domain.RouteAid:     0.9985,
			domain.RouteBoulder: 0.996,
			domain.RouteDefault: 0.998,
		},
		SeasonalBoost: 1.2,
		ElevationDecayM: map[domain.RouteType]float64{
			domain.RouteAlpine:  800,
			domain.RouteIce:     600,
			domain.RouteMixed:   600,
			domain.RouteTrad:    400,
			domain.RouteSport:   300,
			domain.RouteAid:     500,
			domain.RouteBoulder: 200,
			domain.RouteDefault: 500,
		},
		RouteTypeMatrix: map[domain.RouteType]map[domain.RouteType]float64{
			domain.RouteAlpine: {
				domain.RouteAlpine: 1.0, domain.RouteIce: 0.9, domain.RouteMixed: 0.9,
				domain.RouteTrad: 0.7, domain.RouteSport: 0.65, domain.RouteAid: 0.6,
				domain.RouteBoulder: 0.2, domain.RouteDefault: 0.5,
			},
			domain.RouteIce: {
				domain.RouteAlpine: 0.8, domain.RouteIce: 1.0, domain.RouteMixed: 0.9,
				domain.RouteTrad: 0.5, domain.RouteSport: 0.4, domain.RouteAid: 0.4,
				domain.RouteBoulder: 0.1, domain.RouteDefault: 0.4,
			},
			domain.RouteMixed: {
				domain.RouteAlpine: 0.85, domain.RouteIce: 0.9, domain.RouteMixed: 1.0,
				domain.RouteTrad: 0.6, domain.RouteSport: 0.5, domain.RouteAid: 0.5,
				domain.RouteBoulder: 0.15, domain.RouteDefault: 0.45,
			},
			domain.RouteTrad: {
				domain.RouteAlpine: 0.4, domain.RouteIce: 0.25, domain.RouteMixed: 0.3,
				domain.RouteTrad: 1.0, domain.RouteSport: 0.7, domain.RouteAid: 0.6,
				domain.RouteBoulder: 0.3, domain.RouteDefault: 0.4,
			},
			domain.RouteSport: {
				domain.RouteAlpine: 0.15, domain.RouteIce: 0.1, domain.RouteMixed: 0.15,
				domain.RouteTrad: 0.6, domain.RouteSport: 1.0, domain.RouteAid: 0.3,
				domain.RouteBoulder: 0.5, domain.RouteDefault: 0.35,
			},
			domain.RouteAid: {
				domain.RouteAlpine: 0.5, domain.RouteIce: 0.3, domain.RouteMixed: 0.4,
				domain.RouteTrad: 0.7, domain.RouteSport: 0.4, domain.RouteAid: 1.0,
				domain.RouteBoulder: 0.1, domain.RouteDefault: 0.4,
			},
			domain.RouteBoulder: {
				domain.RouteAlpine: 0.1, domain.RouteIce: 0.05, domain.RouteMixed: 0.1,
				domain.RouteTrad: 0.3, domain.RouteSport: 0.5, domain.RouteAid: 0.1,
				domain.RouteBoulder: 1.0, domain.RouteDefault: 0.3,
			},
			domain.RouteDefault: {
				domain.RouteDefault: 1.0,
			},
		},
		DefaultRouteTypeWeight: 0.3,
		GradeBandwidth:         3.0,
		SeverityBoost: map[domain.Severity]float64{
			domain.SeverityFatal:   1.3,
			domain.SeveritySerious: 1.15,
			domain.SeverityMinor:   1.0,
			domain.SeverityUnknown: 1.0,
		},
		MaxSearchRadiusKm:   300,
		NormalizationFactor: 5.0,
		ConfidencePivot:     5.0,
		TopContributors:     10,
	}
}

// HaversineKm returns the great-circle distance between two coordinates
// in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SpatialWeight maps the distance between a route and an accident to
// (0,1] through a Gaussian kernel with a route-type-specific bandwidth.
// There is no hard cutoff; WithinSearchRadius bounds the candidate
// fetch separately.
func (c Config) SpatialWeight(routeLat, routeLon, accLat, accLon float64, routeType domain.RouteType) float64 {
	d := HaversineKm(routeLat, routeLon, accLat, accLon)
	h := c.spatialBandwidth(routeType)
	return math.Exp(-(d * d) / (2 * h * h))
}

func (c Config) spatialBandwidth(routeType domain.RouteType) float64 {
	if h, ok := c.SpatialBandwidthKm[routeType]; ok {
		return h
	}
	return c.SpatialBandwidthKm[domain.RouteDefault]
}

// WithinSearchRadius reports whether an accident is close enough to be a
// candidate at all. radiusKm <= 0 falls back to the configured maximum.
func (c Config) WithinSearchRadius(routeLat, routeLon, accLat, accLon, radiusKm float64) bool {
	if radiusKm <= 0 {
		radiusKm = c.MaxSearchRadiusKm
	}
	return HaversineKm(routeLat, routeLon, accLat, accLon) <= radiusKm
}

// TemporalWeight decays an accident's relevance by elapsed days with a
// route-type-specific lambda, boosted when both dates share a season.
// Elapsed days are taken as |current - accident|: an accident that
// postdates the query (backtesting) decays symmetrically, so the weight
// stays within [0, SeasonalBoost] in either direction.
func (c Config) TemporalWeight(current, accident time.Time, routeType domain.RouteType, applySeasonalBoost bool) float64 {
	days := math.Abs(current.Sub(accident).Hours() / 24)
	lambda := c.temporalLambda(routeType)
	w := math.Pow(lambda, days)

	if applySeasonalBoost && domain.SeasonOf(current) == domain.SeasonOf(accident) {
		w *= c.SeasonalBoost
	}
	return w
}

func (c Config) temporalLambda(routeType domain.RouteType) float64 {
	if l, ok := c.TemporalLambda[routeType]; ok {
		return l
	}
	return c.TemporalLambda[domain.RouteDefault]
}

// ElevationWeight is asymmetric: accidents at or below the route
// elevation keep full weight, accidents above it decay with a Gaussian
// on the positive difference. Missing elevation on either side is
// neutral.
func (c Config) ElevationWeight(routeElev, accElev *float64, routeType domain.RouteType) float64 {
	if routeElev == nil || accElev == nil {
		return 1.0
	}
	diff := *accElev - *routeElev
	if diff <= 0 {
		return 1.0
	}
	decay := c.elevationDecay(routeType)
	return math.Exp(-(diff / decay) * (diff / decay))
}

func (c Config) elevationDecay(routeType domain.RouteType) float64 {
	if d, ok := c.ElevationDecayM[routeType]; ok {
		return d
	}
	return c.ElevationDecayM[domain.RouteDefault]
}

// RouteTypeWeight looks up the asymmetric (planning, accident) relevance
// table. Unknown pairs fall back to DefaultRouteTypeWeight.
func (c Config) RouteTypeWeight(planning, accident domain.RouteType) float64 {
	if row, ok := c.RouteTypeMatrix[planning]; ok {
		if w, ok := row[accident]; ok {
			return w
		}
	}
	return c.DefaultRouteTypeWeight
}

// GradeWeight decays an accident's relevance by the difficulty gap
// between the planned route and the accident's route, symmetric in
// either direction. Missing grade on either side is neutral.
func (c Config) GradeWeight(routeGrade, accGrade *float64) float64 {
	if routeGrade == nil || accGrade == nil {
		return 1.0
	}
	diff := *accGrade - *routeGrade
	return math.Exp(-(diff / c.GradeBandwidth) * (diff / c.GradeBandwidth))
}

// SeverityWeight returns the outcome multiplier in [1.0, 1.3]. Unknown
// severities are neutral.
func (c Config) SeverityWeight(severity domain.Severity) float64 {
	if w, ok := c.SeverityBoost[severity]; ok {
		return w
	}
	return 1.0
}
