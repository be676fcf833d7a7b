package domain

import (
	"maps"
	"math"
	"slices"
)

// ThresholdConfig holds the tunable constants of the difficulty engine.
// Build it with NewThresholdConfig; the returned value is shared by reference
// and must not be modified afterwards.
type ThresholdConfig struct {
	FastCompletionRatio      float64 `yaml:"fast_completion_ratio" json:"fast_completion_ratio"`
	SlowCompletionRatio      float64 `yaml:"slow_completion_ratio" json:"slow_completion_ratio"`
	LowAccuracyThreshold     float64 `yaml:"low_accuracy_threshold" json:"low_accuracy_threshold"`
	PerfectAccuracyTolerance float64 `yaml:"perfect_accuracy_tolerance" json:"perfect_accuracy_tolerance"`

	RawDelta        float64 `yaml:"raw_delta" json:"raw_delta"`
	SmoothingWeight float64 `yaml:"smoothing_weight" json:"smoothing_weight"`
	MinAdjustment   float64 `yaml:"min_adjustment" json:"min_adjustment"`

	MinScore float64 `yaml:"min_score" json:"min_score"`
	MaxScore float64 `yaml:"max_score" json:"max_score"`

	PlateauWindowSize int     `yaml:"plateau_window_size" json:"plateau_window_size"`
	PlateauEpsilon    float64 `yaml:"plateau_epsilon" json:"plateau_epsilon"`

	Bands         []BandBound        `yaml:"bands" json:"bands"`
	BandTolerance float64            `yaml:"band_tolerance" json:"band_tolerance"`
	SeedScores    map[string]float64 `yaml:"seed_scores" json:"seed_scores"`
}

// DefaultThresholdConfig returns the stock tuning
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		FastCompletionRatio:      0.5,
		SlowCompletionRatio:      1.5,
		LowAccuracyThreshold:     0.7,
		PerfectAccuracyTolerance: 0.05,
		RawDelta:                 1.0,
		SmoothingWeight:          0.3,
		MinAdjustment:            0.1,
		MinScore:                 1.0,
		MaxScore:                 10.0,
		PlateauWindowSize:        5,
		PlateauEpsilon:           0.15,
		Bands:                    DefaultBands(),
		BandTolerance:            0.5,
		SeedScores: map[string]float64{
			"beginner":     2.0,
			"intermediate": 5.0,
			"advanced":     8.0,
		},
	}
}

// NewThresholdConfig validates c and returns a private copy of it
func NewThresholdConfig(c ThresholdConfig) (*ThresholdConfig, error) {
	cfg := c.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustThresholdConfig is NewThresholdConfig that panics on invalid input
func MustThresholdConfig(c ThresholdConfig) *ThresholdConfig {
	cfg, err := NewThresholdConfig(c)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the configuration for internal consistency
func (c *ThresholdConfig) Validate() error {
	nonNegative := []struct {
		field string
		value float64
	}{
		{"fast_completion_ratio", c.FastCompletionRatio},
		{"slow_completion_ratio", c.SlowCompletionRatio},
		{"low_accuracy_threshold", c.LowAccuracyThreshold},
		{"perfect_accuracy_tolerance", c.PerfectAccuracyTolerance},
		{"raw_delta", c.RawDelta},
		{"min_adjustment", c.MinAdjustment},
		{"plateau_epsilon", c.PlateauEpsilon},
		{"band_tolerance", c.BandTolerance},
	}
	for _, f := range nonNegative {
		if !finite(f.value) || f.value < 0 {
			return invalid(f.field, "must be a finite non-negative number, got %v", f.value)
		}
	}

	if !finite(c.MinScore) || !finite(c.MaxScore) {
		return invalid("min_score", "score bounds must be finite, got [%v, %v]", c.MinScore, c.MaxScore)
	}
	if c.MinScore >= c.MaxScore {
		return invalid("min_score", "must be below max_score (%v >= %v)", c.MinScore, c.MaxScore)
	}
	if math.IsNaN(c.SmoothingWeight) || c.SmoothingWeight <= 0 || c.SmoothingWeight > 1 {
		return invalid("smoothing_weight", "must be in (0, 1], got %v", c.SmoothingWeight)
	}
	if c.FastCompletionRatio >= c.SlowCompletionRatio {
		return invalid("fast_completion_ratio", "must be below slow_completion_ratio (%v >= %v)",
			c.FastCompletionRatio, c.SlowCompletionRatio)
	}
	if c.LowAccuracyThreshold > 1 {
		return invalid("low_accuracy_threshold", "must not exceed 1, got %v", c.LowAccuracyThreshold)
	}
	if c.PerfectAccuracyTolerance > 1 {
		return invalid("perfect_accuracy_tolerance", "must not exceed 1, got %v", c.PerfectAccuracyTolerance)
	}
	if c.PlateauWindowSize < 1 {
		return invalid("plateau_window_size", "must be at least 1, got %d", c.PlateauWindowSize)
	}

	if len(c.Bands) == 0 {
		return invalid("bands", "at least one band is required")
	}
	seen := make(map[Band]bool, len(c.Bands))
	for i, b := range c.Bands {
		if b.Band.IsZero() {
			return invalid("bands", "band %d has no name", i)
		}
		if seen[b.Band] {
			return invalid("bands", "band %q listed twice", b.Band)
		}
		seen[b.Band] = true
		if !finite(b.Lower) || b.Lower >= c.MaxScore {
			return invalid("bands", "band %q lower bound %v must be below max_score", b.Band, b.Lower)
		}
		if i > 0 && b.Lower <= c.Bands[i-1].Lower {
			return invalid("bands", "band %q lower bound %v must exceed %v", b.Band, b.Lower, c.Bands[i-1].Lower)
		}
	}

	for level, score := range c.SeedScores {
		if !finite(score) || score < c.MinScore || score > c.MaxScore {
			return invalid("seed_scores", "%q seed %v outside [%v, %v]", level, score, c.MinScore, c.MaxScore)
		}
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp bounds a score to [MinScore, MaxScore]
func (c *ThresholdConfig) Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return c.MinScore
	}
	return min(c.MaxScore, max(c.MinScore, score))
}

// SeedScore maps an onboarding skill level to an initial score
func (c *ThresholdConfig) SeedScore(level string) (float64, error) {
	score, ok := c.SeedScores[level]
	if !ok {
		return 0, ErrUnknownSkillLevel
	}
	return score, nil
}

// SkillLevels returns the configured onboarding levels, sorted
func (c *ThresholdConfig) SkillLevels() []string {
	return slices.Sorted(maps.Keys(c.SeedScores))
}

func (c ThresholdConfig) clone() *ThresholdConfig {
	c.Bands = slices.Clone(c.Bands)
	c.SeedScores = maps.Clone(c.SeedScores)
	return &c
}
