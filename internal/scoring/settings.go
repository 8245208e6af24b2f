package scoring

import "github.com/SebastianFrazier26/SafeAscent-sub001/pkg/config"

// FromSettings returns the default calibration with deployment
// overrides applied. Zero or negative values keep the defaults.
func FromSettings(s config.ScoringConfig) Config {
	cfg := DefaultConfig()
	if s.NormalizationFactor > 0 {
		cfg.NormalizationFactor = s.NormalizationFactor
	}
	if s.ConfidencePivot > 0 {
		cfg.ConfidencePivot = s.ConfidencePivot
	}
	if s.SeasonalBoost > 0 {
		cfg.SeasonalBoost = s.SeasonalBoost
	}
	if s.MaxSearchRadiusKm > 0 {
		cfg.MaxSearchRadiusKm = s.MaxSearchRadiusKm
	}
	if s.TopContributors > 0 {
		cfg.TopContributors = s.TopContributors
	}
	return cfg
}
