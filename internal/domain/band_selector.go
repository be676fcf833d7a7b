package domain

import "math"

// BandSelector is a domain service that maps a difficulty profile to the
// exercise band to request next, and flags plateaus.
type BandSelector struct {
	cfg *ThresholdConfig
}

// NewBandSelector creates a band selector bound to cfg
func NewBandSelector(cfg *ThresholdConfig) *BandSelector {
	return &BandSelector{cfg: cfg}
}

// BandSelection is the recommendation handed to exercise generation
type BandSelection struct {
	Score float64 `json:"score"`
	Band  Band    `json:"band"`
	// Adjacent is set when the score sits within the band tolerance of a
	// boundary, so the neighbouring band may be served as well.
	Adjacent  Band    `json:"adjacent_band,omitempty"`
	TargetMin float64 `json:"target_min"`
	TargetMax float64 `json:"target_max"`
	// Plateau asks the exercise generator to vary topics at roughly the
	// same difficulty.
	Plateau bool    `json:"plateau"`
	Drift   float64 `json:"drift"`
}

// Bands returns every band the selection allows, primary first
func (s BandSelection) Bands() []Band {
	if s.Adjacent.IsZero() {
		return []Band{s.Band}
	}
	return []Band{s.Band, s.Adjacent}
}

// SelectBand selects a band for profile under cfg
func SelectBand(profile DifficultyProfile, cfg *ThresholdConfig) BandSelection {
	return NewBandSelector(cfg).Select(profile)
}

// Select derives the recommended band and plateau flag
func (s *BandSelector) Select(profile DifficultyProfile) BandSelection {
	score := s.cfg.Clamp(profile.Score)
	idx := s.bandIndex(score)
	drift, full := s.Drift(profile)

	return BandSelection{
		Score:     score,
		Band:      s.cfg.Bands[idx].Band,
		Adjacent:  s.adjacent(score, idx),
		TargetMin: s.cfg.Clamp(score - s.cfg.BandTolerance),
		TargetMax: s.cfg.Clamp(score + s.cfg.BandTolerance),
		Plateau:   full && drift < s.cfg.PlateauEpsilon,
		Drift:     drift,
	}
}

// BandFor returns the band containing score
func (s *BandSelector) BandFor(score float64) Band {
	return s.cfg.Bands[s.bandIndex(s.cfg.Clamp(score))].Band
}

// Drift is the absolute score change between the earliest and latest
// entries of the last PlateauWindowSize completions. full reports whether
// the window holds enough entries to judge a plateau.
func (s *BandSelector) Drift(profile DifficultyProfile) (drift float64, full bool) {
	n := s.cfg.PlateauWindowSize
	if len(profile.Window) < n {
		return 0, false
	}
	recent := profile.Window[len(profile.Window)-n:]
	return math.Abs(recent[len(recent)-1].ScoreAfter - recent[0].ScoreAfter), true
}

// bandIndex finds the last band whose lower bound is at or below score.
// Scores under the first bound belong to the first band.
func (s *BandSelector) bandIndex(score float64) int {
	idx := 0
	for i, b := range s.cfg.Bands {
		if score >= b.Lower {
			idx = i
		}
	}
	return idx
}

// adjacent returns the neighbouring band reachable within the tolerance,
// preferring the nearer boundary.
func (s *BandSelector) adjacent(score float64, idx int) Band {
	tol := s.cfg.BandTolerance
	bands := s.cfg.Bands

	upGap, downGap := math.Inf(1), math.Inf(1)
	if idx+1 < len(bands) {
		upGap = bands[idx+1].Lower - score
	}
	if idx > 0 {
		downGap = score - bands[idx].Lower
	}

	switch {
	case upGap <= tol && upGap <= downGap:
		return bands[idx+1].Band
	case downGap <= tol:
		return bands[idx-1].Band
	default:
		return ""
	}
}
