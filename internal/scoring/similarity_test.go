package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SebastianFrazier26/SafeAscent-sub001/internal/domain"
)

func flatPattern(days int, temp, precip, wind, cloud float64) *domain.WeatherPattern {
	p := &domain.WeatherPattern{}
	for i := 0; i < days; i++ {
		p.TempC = append(p.TempC, temp)
		p.PrecipMM = append(p.PrecipMM, precip)
		p.WindKPH = append(p.WindKPH, wind)
		p.VisibilityKM = append(p.VisibilityKM, 10)
		p.CloudPct = append(p.CloudPct, cloud)
		p.TempRanges = append(p.TempRanges, domain.TempRange{Min: temp - 5, Avg: temp, Max: temp + 5})
	}
	return p
}

func TestSimilarityWeight_IdenticalPatterns(t *testing.T) {
	p := flatPattern(7, 15, 0, 10, 20)
	assert.InDelta(t, 2.0, SimilarityWeight(p, p), 1e-9)
}

func TestSimilarityWeight_MissingPatternIsNeutral(t *testing.T) {
	p := flatPattern(7, 15, 0, 10, 20)

	assert.Equal(t, 1.0, SimilarityWeight(nil, p))
	assert.Equal(t, 1.0, SimilarityWeight(p, nil))
	assert.Equal(t, 1.0, SimilarityWeight(nil, nil))

	// Mismatched channel lengths invalidate the pattern.
	broken := flatPattern(7, 15, 0, 10, 20)
	broken.WindKPH = broken.WindKPH[:3]
	assert.Equal(t, 1.0, SimilarityWeight(p, broken))
}

func TestSimilarityWeight_DecreasesWithDivergence(t *testing.T) {
	base := flatPattern(7, 15, 0, 10, 20)

	near := SimilarityWeight(base, flatPattern(7, 17, 0, 10, 20))
	mid := SimilarityWeight(base, flatPattern(7, 25, 2, 20, 50))
	far := SimilarityWeight(base, flatPattern(7, -10, 20, 60, 100))

	assert.Less(t, near, 2.0)
	assert.Less(t, mid, near)
	assert.Less(t, far, mid)
	assert.Greater(t, far, 0.0)
}

func TestSimilarityWeight_StormySimilarityBoosts(t *testing.T) {
	// Two stormy windows should reinforce each other more strongly than
	// a stormy window against a calm one.
	storm := flatPattern(7, 2, 15, 45, 95)
	calm := flatPattern(7, 18, 0, 8, 10)

	stormVsStorm := SimilarityWeight(storm, storm)
	stormVsCalm := SimilarityWeight(storm, calm)

	assert.Greater(t, stormVsStorm, 1.0)
	assert.Less(t, stormVsCalm, 1.0)
}

func TestSimilarityWeight_UnequalLengthsAlignTrailing(t *testing.T) {
	// A 3-day historical record against a 7-day forecast compares only
	// the last 3 days of the forecast.
	current := flatPattern(7, 15, 0, 10, 20)
	// Make the early forecast days wildly different; they must not count.
	for i := 0; i < 4; i++ {
		current.TempC[i] = -40
		current.PrecipMM[i] = 100
	}
	historical := flatPattern(3, 15, 0, 10, 20)

	assert.InDelta(t, 2.0, SimilarityWeight(current, historical), 1e-9)
}

func TestStatsSimilarityWeight_MissingSideIsNeutral(t *testing.T) {
	forecast := flatPattern(7, 14, 3, 12, 40)
	stats := &domain.WeatherStats{AvgTempC: 14, AvgPrecipMM: 3, AvgWindKPH: 12}

	assert.Equal(t, 1.0, StatsSimilarityWeight(nil, stats))
	assert.Equal(t, 1.0, StatsSimilarityWeight(forecast, nil))
	assert.Equal(t, 1.0, StatsSimilarityWeight(&domain.WeatherPattern{}, stats))
}

func TestStatsSimilarityWeight_MatchingNormsScoreTwo(t *testing.T) {
	forecast := flatPattern(7, 14, 3, 12, 40)
	stats := &domain.WeatherStats{AvgTempC: 14, AvgPrecipMM: 3, AvgWindKPH: 12}

	assert.InDelta(t, 2.0, StatsSimilarityWeight(forecast, stats), 1e-9)
}

func TestStatsSimilarityWeight_DecreasesWithDivergence(t *testing.T) {
	forecast := flatPattern(7, 14, 3, 12, 40)

	prev := 2.0
	for _, offset := range []float64{2, 5, 15, 40} {
		stats := &domain.WeatherStats{
			AvgTempC:    14 + offset,
			AvgPrecipMM: 3 + offset,
			AvgWindKPH:  12 + offset,
		}
		w := StatsSimilarityWeight(forecast, stats)
		assert.Less(t, w, prev)
		prev = w
	}
	assert.Greater(t, prev, 0.0)
}
