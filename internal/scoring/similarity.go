package scoring

import (
	"math"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

// Channel scales used to normalize per-channel differences into
// comparable units. A difference equal to the scale counts as one unit
// of dissimilarity on that channel.
const (
	tempScaleC    = 10.0
	precipScaleMM = 5.0
	windScaleKPH  = 15.0
	cloudScalePct = 50.0
)

// Channel weights for the combined dissimilarity. Precipitation and
// temperature dominate because they drive the conditions that actually
// produce accidents (storms, freeze-thaw).
const (
	tempChannelWeight   = 0.35
	precipChannelWeight = 0.35
	windChannelWeight   = 0.20
	cloudChannelWeight  = 0.10
)

// SimilarityWeight compares the forecast pattern around the planned date
// against the pattern recorded at an accident and returns a
// multiplicative weight in [0, 2]. Identical patterns score 2.0, a
// baseline dissimilarity of ln 2 scores exactly 1.0, and the weight
// decays monotonically toward 0 as conditions diverge. A missing or
// malformed pattern on either side is neutral (1.0).
func SimilarityWeight(current, historical *domain.WeatherPattern) float64 {
	if !current.Valid() || !historical.Valid() {
		return 1.0
	}

	days := current.Days()
	if historical.Days() < days {
		days = historical.Days()
	}

	// Compare the trailing window so patterns of unequal length still
	// align on the days closest to the reference date.
	co := current.Days() - days
	ho := historical.Days() - days

	var dTemp, dPrecip, dWind, dCloud float64
	for i := 0; i < days; i++ {
		dTemp += math.Abs(current.TempC[co+i] - historical.TempC[ho+i])
		dPrecip += math.Abs(current.PrecipMM[co+i] - historical.PrecipMM[ho+i])
		dWind += math.Abs(current.WindKPH[co+i] - historical.WindKPH[ho+i])
		dCloud += math.Abs(current.CloudPct[co+i] - historical.CloudPct[ho+i])
	}
	n := float64(days)

	d := tempChannelWeight*(dTemp/n/tempScaleC) +
		precipChannelWeight*(dPrecip/n/precipScaleMM) +
		windChannelWeight*(dWind/n/windScaleKPH) +
		cloudChannelWeight*(dCloud/n/cloudScalePct)

	return 2 * math.Exp(-d)
}

// StatsSimilarityWeight is the fallback comparison for accidents with no
// recorded pattern: the forecast's channel means are compared against
// the location's seasonal norms on the three channels the stats carry,
// with the channel weights renormalized. Accidents without recorded
// conditions happened, by and large, under the conditions typical for
// their place and season, so the norm stands in for the missing pattern.
// Same [0, 2] range and neutral-on-missing behavior as SimilarityWeight.
func StatsSimilarityWeight(current *domain.WeatherPattern, stats *domain.WeatherStats) float64 {
	if !current.Valid() || stats == nil {
		return 1.0
	}

	n := float64(current.Days())
	var temp, precip, wind float64
	for i := 0; i < current.Days(); i++ {
		temp += current.TempC[i]
		precip += current.PrecipMM[i]
		wind += current.WindKPH[i]
	}
	temp /= n
	precip /= n
	wind /= n

	const weightSum = tempChannelWeight + precipChannelWeight + windChannelWeight
	d := (tempChannelWeight*(math.Abs(temp-stats.AvgTempC)/tempScaleC) +
		precipChannelWeight*(math.Abs(precip-stats.AvgPrecipMM)/precipScaleMM) +
		windChannelWeight*(math.Abs(wind-stats.AvgWindKPH)/windScaleKPH)) / weightSum

	return 2 * math.Exp(-d)
}
